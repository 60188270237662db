package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// Policy defaults.
const (
	DefaultTimezone            = "UTC"
	DefaultWorkStartHour       = 9
	DefaultWorkEndHour         = 18
	DefaultSlotDurationMinutes = 30
	DefaultMinLeadMinutes      = 30
)

// DefaultExcludedWeekdays are skipped unless the configuration says otherwise.
var DefaultExcludedWeekdays = []time.Weekday{time.Saturday, time.Sunday}

// PolicyConfig is the raw, unvalidated input to NewPolicy.
type PolicyConfig struct {
	// Timezone is an IANA zone identifier such as "Europe/Berlin". Empty means UTC.
	Timezone string

	// WorkStartHour and WorkEndHour bound the daily window on a 24h clock (0-23).
	WorkStartHour int
	WorkEndHour   int

	SlotDurationMinutes int
	MinLeadMinutes      int

	// ExcludedWeekdays nil means DefaultExcludedWeekdays; an empty, non-nil
	// slice excludes nothing.
	ExcludedWeekdays []time.Weekday
}

// DefaultPolicyConfig returns the configuration used when nothing is set.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Timezone:            DefaultTimezone,
		WorkStartHour:       DefaultWorkStartHour,
		WorkEndHour:         DefaultWorkEndHour,
		SlotDurationMinutes: DefaultSlotDurationMinutes,
		MinLeadMinutes:      DefaultMinLeadMinutes,
	}
}

// Policy is the validated, immutable working-hours template shared by
// Availability and Committer.
type Policy struct {
	timezone      string
	loc           *time.Location
	workStartHour int
	workEndHour   int
	slotDuration  time.Duration
	minLead       time.Duration
	excluded      [7]bool
}

// NewPolicy validates cfg and returns the policy, or a *ConfigurationError.
//
// A window too short for a single slot is accepted; it simply yields no slots.
func NewPolicy(cfg PolicyConfig) (*Policy, error) {
	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, &ConfigurationError{Field: "timezone", Reason: fmt.Sprintf("%q is not a known IANA zone", tz)}
	}

	if cfg.WorkStartHour < 0 || cfg.WorkStartHour > 23 {
		return nil, &ConfigurationError{Field: "work start hour", Reason: fmt.Sprintf("must be between 0 and 23, got %d", cfg.WorkStartHour)}
	}
	if cfg.WorkEndHour < 0 || cfg.WorkEndHour > 23 {
		return nil, &ConfigurationError{Field: "work end hour", Reason: fmt.Sprintf("must be between 0 and 23, got %d", cfg.WorkEndHour)}
	}
	if cfg.WorkEndHour <= cfg.WorkStartHour {
		return nil, &ConfigurationError{Field: "work end hour", Reason: fmt.Sprintf("must be after work start hour (%d <= %d)", cfg.WorkEndHour, cfg.WorkStartHour)}
	}
	if cfg.SlotDurationMinutes <= 0 {
		return nil, &ConfigurationError{Field: "slot duration", Reason: fmt.Sprintf("must be positive, got %d minutes", cfg.SlotDurationMinutes)}
	}
	if cfg.MinLeadMinutes < 0 {
		return nil, &ConfigurationError{Field: "minimum lead time", Reason: fmt.Sprintf("must not be negative, got %d minutes", cfg.MinLeadMinutes)}
	}

	p := &Policy{
		timezone:      loc.String(),
		loc:           loc,
		workStartHour: cfg.WorkStartHour,
		workEndHour:   cfg.WorkEndHour,
		slotDuration:  time.Duration(cfg.SlotDurationMinutes) * time.Minute,
		minLead:       time.Duration(cfg.MinLeadMinutes) * time.Minute,
	}

	excluded := cfg.ExcludedWeekdays
	if excluded == nil {
		excluded = DefaultExcludedWeekdays
	}
	for _, wd := range excluded {
		if wd < time.Sunday || wd > time.Saturday {
			return nil, &ConfigurationError{Field: "excluded weekdays", Reason: fmt.Sprintf("unknown weekday %d", int(wd))}
		}
		p.excluded[wd] = true
	}

	return p, nil
}

// Timezone returns the IANA name of the owner's zone.
func (p *Policy) Timezone() string { return p.timezone }

// Location returns the owner's zone.
func (p *Policy) Location() *time.Location { return p.loc }

// WorkStartHour returns the local hour the working day starts.
func (p *Policy) WorkStartHour() int { return p.workStartHour }

// WorkEndHour returns the local hour the working day ends.
func (p *Policy) WorkEndHour() int { return p.workEndHour }

// SlotDuration returns the length of every slot.
func (p *Policy) SlotDuration() time.Duration { return p.slotDuration }

// MinLead returns the minimum gap between now and a bookable slot start.
func (p *Policy) MinLead() time.Duration { return p.minLead }

// IsExcluded reports whether no slots are offered on wd.
func (p *Policy) IsExcluded(wd time.Weekday) bool {
	return p.excluded[wd]
}

// ExcludedWeekdays returns the excluded weekdays in Sunday-first order.
func (p *Policy) ExcludedWeekdays() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if p.excluded[wd] {
			out = append(out, wd)
		}
	}
	return out
}

// Window returns the working window of day as absolute instants.
func (p *Policy) Window(day Date) (start, end time.Time) {
	return ZonedInstant(day, p.workStartHour, 0, p.loc), ZonedInstant(day, p.workEndHour, 0, p.loc)
}

// SlotsPerDay returns how many slots a day without an offset change holds.
func (p *Policy) SlotsPerDay() int {
	window := time.Duration(p.workEndHour-p.workStartHour) * time.Hour
	return int(window / p.slotDuration)
}

// String summarises the policy for logs.
func (p *Policy) String() string {
	days := make([]string, 0, 7)
	for _, wd := range p.ExcludedWeekdays() {
		days = append(days, strings.ToLower(wd.String()[:3]))
	}
	return fmt.Sprintf("%s %02d:00-%02d:00 every %s, lead %s, excluding [%s]",
		p.timezone, p.workStartHour, p.workEndHour, p.slotDuration, p.minLead, strings.Join(days, ","))
}

// ParseWeekday accepts full or three-letter English weekday names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		full := strings.ToLower(wd.String())
		if name == full || name == full[:3] {
			return wd, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}
