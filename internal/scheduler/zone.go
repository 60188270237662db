package scheduler

import (
	"fmt"
	"time"
	// Zone data is embedded so policies resolve in minimal containers.
	_ "time/tzdata"
)

// Date is a calendar day with no time zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t as seen in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// AddDays returns the date n days later (earlier when n is negative).
func (d Date) AddDays(n int) Date {
	// Noon UTC keeps the arithmetic away from any offset change.
	y, m, day := time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC).Date()
	return Date{Year: y, Month: m, Day: day}
}

// Weekday returns the day of the week of d.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// ZonedInstant interprets the wall clock time hour:minute on day d in loc and
// returns the absolute instant it denotes.
//
// A wall clock time that occurs twice (clocks set back) resolves to the
// earlier instant. A wall clock time that never occurs (clocks set forward)
// is read with the offset in force before the transition, which lands it
// after the gap by the size of the gap: 02:30 on a spring-forward night in
// New York becomes 03:30 EDT.
func ZonedInstant(d Date, hour, minute int, loc *time.Location) time.Time {
	wall := time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, time.UTC)

	// Offsets a safe margin either side of the wall time. Real zones never
	// change offset twice within a day.
	offBefore := offsetAt(wall.Add(-12*time.Hour), loc)
	offAfter := offsetAt(wall.Add(12*time.Hour), loc)

	early := wall.Add(-offBefore)
	late := wall.Add(-offAfter)

	earlyOK := wallClockMatches(early, wall, loc)
	lateOK := wallClockMatches(late, wall, loc)

	switch {
	case earlyOK && lateOK:
		if late.Before(early) {
			return late
		}
		return early
	case earlyOK:
		return early
	case lateOK:
		return late
	default:
		return early
	}
}

func offsetAt(t time.Time, loc *time.Location) time.Duration {
	_, offset := t.In(loc).Zone()
	return time.Duration(offset) * time.Second
}

func wallClockMatches(instant, wall time.Time, loc *time.Location) bool {
	local := instant.In(loc)
	y, m, d := local.Date()
	wy, wm, wd := wall.Date()
	return y == wy && m == wm && d == wd &&
		local.Hour() == wall.Hour() && local.Minute() == wall.Minute()
}
