package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-03-04 is a Monday.
var monday = time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

func utc(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
}

func newTestPolicy(t *testing.T, mutate func(*PolicyConfig)) *Policy {
	t.Helper()
	cfg := DefaultPolicyConfig()
	cfg.WorkStartHour, cfg.WorkEndHour = 9, 17
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewPolicy(cfg)
	require.NoError(t, err)
	return p
}

func containsSlot(slots []Slot, want Slot) bool {
	for _, s := range slots {
		if s.Equal(want) {
			return true
		}
	}
	return false
}

func TestGenerate_FullDay(t *testing.T) {
	p := newTestPolicy(t, nil)

	slots := Generate(monday, utc(monday, 23, 59), p, nil, utc(monday, 8, 0))

	require.Len(t, slots, 16)
	assert.True(t, slots[0].Equal(Slot{Start: utc(monday, 9, 0), End: utc(monday, 9, 30)}))
	assert.True(t, slots[15].Equal(Slot{Start: utc(monday, 16, 30), End: utc(monday, 17, 0)}))
}

func TestGenerate_BusyIntervalRemovesOverlappingSlots(t *testing.T) {
	p := newTestPolicy(t, nil)
	busy := []BusyInterval{{Start: utc(monday, 10, 0), End: utc(monday, 11, 0)}}

	slots := Generate(monday, utc(monday, 23, 59), p, busy, utc(monday, 8, 0))

	assert.Len(t, slots, 14)
	assert.False(t, containsSlot(slots, Slot{Start: utc(monday, 10, 0), End: utc(monday, 10, 30)}))
	assert.False(t, containsSlot(slots, Slot{Start: utc(monday, 10, 30), End: utc(monday, 11, 0)}))
	assert.True(t, containsSlot(slots, Slot{Start: utc(monday, 9, 30), End: utc(monday, 10, 0)}))
	assert.True(t, containsSlot(slots, Slot{Start: utc(monday, 11, 0), End: utc(monday, 11, 30)}))
}

func TestGenerate_WeekendProducesNothing(t *testing.T) {
	p := newTestPolicy(t, nil)
	saturday := monday.AddDate(0, 0, 5)
	sunday := monday.AddDate(0, 0, 6)
	busy := []BusyInterval{{Start: utc(saturday, 12, 0), End: utc(saturday, 13, 0)}}

	slots := Generate(saturday, utc(sunday, 23, 59), p, busy, utc(monday, 8, 0))
	assert.Empty(t, slots)
	assert.NotNil(t, slots)

	slots = Generate(saturday, utc(sunday, 23, 59), p, nil, utc(monday, 8, 0))
	assert.Empty(t, slots)
}

func TestGenerate_LeadTimeIsStrict(t *testing.T) {
	p := newTestPolicy(t, nil)

	// now + lead lands exactly on 10:00, so 10:00 is not bookable.
	now := utc(monday, 9, 30)
	slots := Generate(monday, utc(monday, 23, 59), p, nil, now)

	require.NotEmpty(t, slots)
	assert.True(t, slots[0].Start.Equal(utc(monday, 10, 30)))
	for _, s := range slots {
		assert.True(t, s.Start.After(now.Add(p.MinLead())))
	}
}

func TestGenerate_ZeroLead(t *testing.T) {
	p := newTestPolicy(t, func(c *PolicyConfig) { c.MinLeadMinutes = 0 })

	slots := Generate(monday, utc(monday, 23, 59), p, nil, utc(monday, 9, 0))
	require.NotEmpty(t, slots)
	assert.True(t, slots[0].Start.Equal(utc(monday, 9, 30)))
}

func TestGenerate_TouchingBusyIntervalDoesNotBlock(t *testing.T) {
	p := newTestPolicy(t, nil)
	busy := []BusyInterval{{Start: utc(monday, 9, 0), End: utc(monday, 9, 30)}}

	slots := Generate(monday, utc(monday, 23, 59), p, busy, utc(monday, 8, 0))

	assert.False(t, containsSlot(slots, Slot{Start: utc(monday, 9, 0), End: utc(monday, 9, 30)}))
	assert.True(t, containsSlot(slots, Slot{Start: utc(monday, 9, 30), End: utc(monday, 10, 0)}))
}

func TestGenerate_PartialOverlapBlocks(t *testing.T) {
	p := newTestPolicy(t, nil)
	busy := []BusyInterval{{Start: utc(monday, 9, 29), End: utc(monday, 9, 31)}}

	slots := Generate(monday, utc(monday, 23, 59), p, busy, utc(monday, 8, 0))

	assert.False(t, containsSlot(slots, Slot{Start: utc(monday, 9, 0), End: utc(monday, 9, 30)}))
	assert.False(t, containsSlot(slots, Slot{Start: utc(monday, 9, 30), End: utc(monday, 10, 0)}))
	assert.Len(t, slots, 14)
}

func TestGenerate_DegenerateBusyIntervalsIgnored(t *testing.T) {
	p := newTestPolicy(t, nil)
	busy := []BusyInterval{
		{Start: utc(monday, 11, 0), End: utc(monday, 10, 0)},
		{Start: utc(monday, 12, 0), End: utc(monday, 12, 0)},
	}

	slots := Generate(monday, utc(monday, 23, 59), p, busy, utc(monday, 8, 0))
	assert.Len(t, slots, 16)
}

func TestGenerate_ReversedRange(t *testing.T) {
	p := newTestPolicy(t, nil)

	slots := Generate(utc(monday, 12, 0), utc(monday, 11, 0), p, nil, utc(monday, 8, 0))
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestGenerate_WindowTooShortForSlot(t *testing.T) {
	p := newTestPolicy(t, func(c *PolicyConfig) {
		c.WorkStartHour, c.WorkEndHour = 9, 10
		c.SlotDurationMinutes = 45
	})

	slots := Generate(monday, utc(monday.AddDate(0, 0, 4), 23, 59), p, nil, utc(monday, 0, 0))
	// 45 minutes fit once into a one hour window; the 15 minute tail is dropped.
	assert.Len(t, slots, 5)

	p = newTestPolicy(t, func(c *PolicyConfig) {
		c.WorkStartHour, c.WorkEndHour = 9, 10
		c.SlotDurationMinutes = 90
	})
	assert.Empty(t, Generate(monday, utc(monday.AddDate(0, 0, 4), 23, 59), p, nil, utc(monday, 0, 0)))
}

func TestGenerate_Properties(t *testing.T) {
	p := newTestPolicy(t, func(c *PolicyConfig) {
		c.Timezone = "America/Los_Angeles"
		c.SlotDurationMinutes = 25
	})
	now := time.Date(2024, time.March, 6, 18, 10, 0, 0, time.UTC)
	start := now
	end := now.AddDate(0, 0, 21)
	busy := []BusyInterval{
		{Start: now.Add(20 * time.Hour), End: now.Add(23 * time.Hour)},
		{Start: now.Add(50 * time.Hour), End: now.Add(50*time.Hour + 10*time.Minute)},
		{Start: now.Add(100 * time.Hour), End: now.Add(99 * time.Hour)},
	}

	slots := Generate(start, end, p, busy, now)
	require.NotEmpty(t, slots)

	for i, s := range slots {
		assert.Equal(t, p.SlotDuration(), s.Duration(), "slot %d duration", i)
		assert.True(t, s.Start.After(now.Add(p.MinLead())), "slot %d lead", i)
		assert.False(t, p.IsExcluded(s.Start.In(p.Location()).Weekday()), "slot %d weekday", i)
		for _, b := range busy {
			if b.Valid() {
				assert.False(t, s.Overlaps(b), "slot %d overlaps busy", i)
			}
		}
		if i > 0 {
			assert.True(t, s.Start.After(slots[i-1].Start), "slot %d ordering", i)
		}
	}

	again := Generate(start, end, p, busy, now)
	assert.Equal(t, slots, again)
}

func TestGenerate_DaylightSavingDays(t *testing.T) {
	tests := []struct {
		name string
		zone string
		day  Date
	}{
		{"new york spring forward", "America/New_York", Date{2024, time.March, 10}},
		{"new york fall back", "America/New_York", Date{2024, time.November, 3}},
		{"berlin spring forward", "Europe/Berlin", Date{2024, time.March, 31}},
		{"berlin fall back", "Europe/Berlin", Date{2024, time.October, 27}},
		{"sydney fall back", "Australia/Sydney", Date{2024, time.April, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPolicy(t, func(c *PolicyConfig) {
				c.Timezone = tt.zone
				c.WorkStartHour, c.WorkEndHour = 9, 18
				c.ExcludedWeekdays = []time.Weekday{}
			})
			loc := p.Location()

			dayStart := ZonedInstant(tt.day, 0, 0, loc)
			dayEnd := ZonedInstant(tt.day, 23, 59, loc)
			slots := Generate(dayStart, dayEnd, p, nil, dayStart.AddDate(0, 0, -1))

			require.Len(t, slots, 18)
			first := slots[0].Start.In(loc)
			last := slots[17].End.In(loc)
			assert.Equal(t, 9, first.Hour())
			assert.Equal(t, 0, first.Minute())
			assert.Equal(t, 18, last.Hour())
			assert.Equal(t, 0, last.Minute())
			for _, s := range slots {
				assert.Equal(t, 30*time.Minute, s.Duration())
				assert.Equal(t, tt.day, DateOf(s.Start, loc))
			}

			// The neighbouring day has a different offset but the same local shape.
			prev := tt.day.AddDays(-1)
			prevStart, _ := p.Window(prev)
			_, offDay := slots[0].Start.In(loc).Zone()
			_, offPrev := prevStart.In(loc).Zone()
			assert.NotEqual(t, offPrev, offDay)
		})
	}
}

func TestGenerate_DaysFollowPolicyZone(t *testing.T) {
	p := newTestPolicy(t, func(c *PolicyConfig) { c.Timezone = "Asia/Tokyo" })

	// 20:00 UTC Sunday is already Monday in Tokyo.
	sundayEvening := time.Date(2024, time.March, 3, 20, 0, 0, 0, time.UTC)
	slots := Generate(sundayEvening, sundayEvening.Add(6*time.Hour), p, nil, sundayEvening.Add(-48*time.Hour))

	require.Len(t, slots, 16)
	assert.Equal(t, Date{2024, time.March, 4}, DateOf(slots[0].Start, p.Location()))
}

func TestGenerate_NilPolicy(t *testing.T) {
	assert.Empty(t, Generate(monday, monday.Add(time.Hour), nil, nil, monday))
}

func TestGroupByDay(t *testing.T) {
	p := newTestPolicy(t, nil)
	slots := Generate(monday, utc(monday.AddDate(0, 0, 1), 23, 59), p, nil, utc(monday, 0, 0))

	days := GroupByDay(slots, time.UTC)
	require.Len(t, days, 2)
	assert.Equal(t, Date{2024, time.March, 4}, days[0].Date)
	assert.Len(t, days[0].Slots, 16)
	assert.Equal(t, Date{2024, time.March, 5}, days[1].Date)
	assert.Len(t, days[1].Slots, 16)
	assert.Empty(t, GroupByDay(nil, time.UTC))
}
