package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/teemow/slotbook/internal/logging"
)

// DefaultOwnerName is the owner display name used when none is configured.
const DefaultOwnerName = "Host"

// BookingRequest is a requester's choice of slot plus their details.
type BookingRequest struct {
	AttendeeName    string `json:"name" validate:"required"`
	AttendeeEmail   string `json:"email" validate:"required,mailaddr"`
	AttendeeCompany string `json:"company" validate:"required"`
	Slot            Slot   `json:"slot"`
}

// Owner is the calendar owner, invited alongside the requester.
type Owner struct {
	Email string
	Name  string
}

// Attendee is one invitee of an inserted event.
type Attendee struct {
	Email       string
	DisplayName string
}

// EventRequest is the single event the committer asks the calendar to create.
type EventRequest struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Attendees   []Attendee

	// ConferenceRequestID idempotently identifies the Meet link request.
	ConferenceRequestID string
}

// MeetingRecord is what the calendar returned for a committed booking.
// An empty ConferenceLink means no video link was attached.
type MeetingRecord struct {
	EventID        string
	ConferenceLink string
	HTMLLink       string
}

// EventInserter creates calendar events. Implementations make exactly one
// call to the calendar service per InsertEvent and do not retry.
type EventInserter interface {
	InsertEvent(ctx context.Context, req EventRequest) (MeetingRecord, error)
}

// EventInserterFunc adapts a function to EventInserter.
type EventInserterFunc func(ctx context.Context, req EventRequest) (MeetingRecord, error)

// InsertEvent calls f.
func (f EventInserterFunc) InsertEvent(ctx context.Context, req EventRequest) (MeetingRecord, error) {
	return f(ctx, req)
}

// The address check is loose: something@something.tld with no
// whitespace. The calendar service does the real validation when it invites.
var mailAddrPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like a deliverable address.
func ValidEmail(s string) bool {
	return mailAddrPattern.MatchString(strings.TrimSpace(s))
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("mailaddr", func(fl validator.FieldLevel) bool {
		return mailAddrPattern.MatchString(fl.Field().String())
	})
	return v
}

// Committer turns a chosen slot into a calendar event.
type Committer struct {
	policy   *Policy
	inserter EventInserter
	validate *validator.Validate
	opts     options
}

// NewCommitter returns a Committer that writes through inserter.
func NewCommitter(policy *Policy, inserter EventInserter, opts ...Option) *Committer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Committer{
		policy:   policy,
		inserter: inserter,
		validate: newValidator(),
		opts:     o,
	}
}

// HasInserter reports whether an event inserter is configured.
func (c *Committer) HasInserter() bool {
	return c.inserter != nil
}

// Commit validates req and inserts one event for it.
//
// Validation and staleness failures never reach the calendar service. An
// upstream failure is returned as-is without retry, because the event may
// already exist. Overlap with existing events is only checked when
// WithOverlapRecheck was given; otherwise the calendar service is the
// arbiter of conflicts.
func (c *Committer) Commit(ctx context.Context, req BookingRequest) (MeetingRecord, error) {
	req = normalize(req)

	if err := c.check(req); err != nil {
		c.opts.observer.RecordBooking(ctx, BookingResultInvalid)
		return MeetingRecord{}, err
	}

	now := c.opts.now()
	if !req.Slot.Start.After(now) {
		c.opts.observer.RecordBooking(ctx, BookingResultStale)
		return MeetingRecord{}, &StaleSlotError{Start: req.Slot.Start, Now: now}
	}

	if c.opts.recheck != nil {
		if err := c.recheck(ctx, req.Slot, now); err != nil {
			if errors.Is(err, ErrSlotConflict) {
				c.opts.observer.RecordBooking(ctx, BookingResultConflict)
			} else {
				c.opts.observer.RecordBooking(ctx, BookingResultFailed)
			}
			return MeetingRecord{}, err
		}
	}

	record, err := c.inserter.InsertEvent(ctx, c.eventFor(req))
	if err != nil {
		c.opts.observer.RecordBooking(ctx, BookingResultFailed)
		c.opts.logger.Error("calendar event insert failed", logging.SlotStart(req.Slot.Start), logging.Err(err))
		var upErr *UpstreamError
		if errors.As(err, &upErr) {
			return MeetingRecord{}, err
		}
		return MeetingRecord{}, &UpstreamError{Op: OpCommit, Err: err}
	}

	c.opts.observer.RecordBooking(ctx, BookingResultCommitted)
	c.opts.logger.Info("booking committed",
		slog.String("event_id", record.EventID),
		logging.SlotStart(req.Slot.Start),
		logging.Domain(req.AttendeeEmail),
		slog.Bool("has_conference", record.ConferenceLink != ""))
	return record, nil
}

func normalize(req BookingRequest) BookingRequest {
	req.AttendeeName = strings.TrimSpace(req.AttendeeName)
	req.AttendeeEmail = strings.ToLower(strings.TrimSpace(req.AttendeeEmail))
	req.AttendeeCompany = strings.TrimSpace(req.AttendeeCompany)
	return req
}

var fieldNames = map[string]string{
	"AttendeeName":    "name",
	"AttendeeEmail":   "email",
	"AttendeeCompany": "company",
}

func (c *Committer) check(req BookingRequest) error {
	if err := c.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
			return &ValidationError{Field: "request", Reason: err.Error()}
		}
		fe := fieldErrs[0]
		field := fieldNames[fe.StructField()]
		if field == "" {
			field = strings.ToLower(fe.StructField())
		}
		if fe.Tag() == "required" {
			return &ValidationError{Field: field, Reason: reasonRequired}
		}
		return &ValidationError{Field: field, Reason: "not a valid email address"}
	}

	if req.Slot.Start.IsZero() {
		return &ValidationError{Field: "start", Reason: reasonRequired}
	}
	if req.Slot.End.IsZero() {
		return &ValidationError{Field: "end", Reason: reasonRequired}
	}
	if !req.Slot.End.After(req.Slot.Start) {
		return &ValidationError{Field: "end", Reason: "must be after start"}
	}
	return c.onGrid(req.Slot)
}

// onGrid rejects slots Generate could never have offered: the wrong length,
// off the slot boundaries, outside working hours or on an excluded day.
func (c *Committer) onGrid(slot Slot) error {
	d := c.policy.SlotDuration()
	if slot.Duration() != d {
		return &ValidationError{Field: "end", Reason: fmt.Sprintf("slot must last %s", d)}
	}
	day := DateOf(slot.Start, c.policy.Location())
	if c.policy.IsExcluded(day.Weekday()) {
		return &ValidationError{Field: "start", Reason: fmt.Sprintf("%s is not a working day", day.Weekday())}
	}
	workStart, workEnd := c.policy.Window(day)
	if slot.Start.Before(workStart) || slot.End.After(workEnd) || slot.Start.Sub(workStart)%d != 0 {
		return &ValidationError{Field: "start", Reason: "not a slot within working hours"}
	}
	return nil
}

func (c *Committer) recheck(ctx context.Context, slot Slot, now time.Time) error {
	busy, err := fetchBusy(ctx, c.opts.recheck, slot.Start, slot.End, c.opts.fetchTimeout)
	if err != nil {
		return err
	}
	for _, b := range busy {
		if b.Valid() && slot.Overlaps(b) {
			return &StaleSlotError{Start: slot.Start, Now: now, Err: ErrSlotConflict}
		}
	}
	return nil
}

func (c *Committer) eventFor(req BookingRequest) EventRequest {
	attendees := []Attendee{{Email: req.AttendeeEmail, DisplayName: req.AttendeeName}}
	if owner := c.opts.owner; owner.Email != "" {
		name := owner.Name
		if name == "" {
			name = DefaultOwnerName
		}
		attendees = append(attendees, Attendee{Email: owner.Email, DisplayName: name})
	}

	description := strings.Join([]string{
		"Name: " + req.AttendeeName,
		"Email: " + req.AttendeeEmail,
		"Company: " + req.AttendeeCompany,
		"",
		"Booked via the online scheduling page.",
	}, "\n")

	tz := DefaultTimezone
	if c.policy != nil {
		tz = c.policy.Timezone()
	}

	return EventRequest{
		Summary:             fmt.Sprintf("Meeting with %s (%s)", req.AttendeeName, req.AttendeeCompany),
		Description:         description,
		Start:               req.Slot.Start,
		End:                 req.Slot.End,
		TimeZone:            tz,
		Attendees:           attendees,
		ConferenceRequestID: c.opts.requestID(),
	}
}
