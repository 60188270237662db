package scheduler

import (
	"time"
)

// Slot is a bookable range. Two slots are the same slot when their instants
// are equal, regardless of location.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Equal reports whether s and other cover the same instants.
func (s Slot) Equal(other Slot) bool {
	return s.Start.Equal(other.Start) && s.End.Equal(other.End)
}

// Duration returns the elapsed length of the slot.
func (s Slot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Overlaps reports whether s and b share any instant. Touching endpoints do
// not overlap.
func (s Slot) Overlaps(b BusyInterval) bool {
	return s.Start.Before(b.End) && s.End.After(b.Start)
}

// BusyInterval is a range during which the owner is unavailable.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether b constrains anything. Intervals with End <= Start
// come from a noisy feed and are ignored rather than rejected.
func (b BusyInterval) Valid() bool {
	return b.End.After(b.Start)
}

// Generate returns the bookable slots between rangeStart and rangeEnd.
//
// Every calendar day touched by [rangeStart, rangeEnd], counted in the policy
// zone, is tiled from its local work start with back-to-back slots; a tail
// shorter than one slot is dropped. A slot is kept when it starts strictly
// after now plus the minimum lead and overlaps no valid busy interval.
// Excluded weekdays produce nothing. The result is ordered by start and is
// never nil.
func Generate(rangeStart, rangeEnd time.Time, policy *Policy, busy []BusyInterval, now time.Time) []Slot {
	slots := []Slot{}
	if policy == nil || rangeStart.After(rangeEnd) {
		return slots
	}

	active := make([]BusyInterval, 0, len(busy))
	for _, b := range busy {
		if b.Valid() {
			active = append(active, b)
		}
	}

	loc := policy.Location()
	earliest := now.Add(policy.MinLead())
	duration := policy.SlotDuration()

	last := DateOf(rangeEnd, loc)
	for day := DateOf(rangeStart, loc); !day.After(last); day = day.AddDays(1) {
		if policy.IsExcluded(day.Weekday()) {
			continue
		}

		dayStart, dayEnd := policy.Window(day)
		for start := dayStart; !start.Add(duration).After(dayEnd); start = start.Add(duration) {
			candidate := Slot{Start: start, End: start.Add(duration)}
			if !candidate.Start.After(earliest) {
				continue
			}
			if overlapsAny(candidate, active) {
				continue
			}
			slots = append(slots, candidate)
		}
	}

	return slots
}

func overlapsAny(slot Slot, busy []BusyInterval) bool {
	for _, b := range busy {
		if slot.Overlaps(b) {
			return true
		}
	}
	return false
}

// GroupByDay splits ordered slots into runs that share a local calendar day
// in loc, preserving order. Presentation layers use it to render one row per day.
func GroupByDay(slots []Slot, loc *time.Location) []DaySlots {
	var days []DaySlots
	for _, s := range slots {
		d := DateOf(s.Start, loc)
		if n := len(days); n > 0 && days[n-1].Date == d {
			days[n-1].Slots = append(days[n-1].Slots, s)
			continue
		}
		days = append(days, DaySlots{Date: d, Slots: []Slot{s}})
	}
	return days
}

// DaySlots is the slots of one local day.
type DaySlots struct {
	Date  Date
	Slots []Slot
}
