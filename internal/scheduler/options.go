package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Observer receives outcome counts. *instrumentation.Metrics implements it.
type Observer interface {
	RecordSlotsGenerated(ctx context.Context, count int)
	RecordBooking(ctx context.Context, result string)
}

// Booking results reported to the Observer.
const (
	BookingResultCommitted = "committed"
	BookingResultInvalid   = "invalid"
	BookingResultStale     = "stale"
	BookingResultConflict  = "conflict"
	BookingResultFailed    = "failed"
)

type options struct {
	now          func() time.Time
	fetchTimeout time.Duration
	logger       *slog.Logger
	observer     Observer
	owner        Owner
	recheck      BusyIntervalSource
	requestID    func() string
}

func defaultOptions() options {
	return options{
		now:       time.Now,
		logger:    slog.Default(),
		observer:  noopObserver{},
		requestID: func() string { return "slotbook-" + uuid.NewString() },
	}
}

// Option configures Availability and Committer.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithFetchTimeout bounds each busy interval fetch. Zero leaves only the
// caller's deadline in force.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) {
		o.fetchTimeout = d
	}
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver reports slot counts and booking outcomes.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithOwner adds the owner as a second attendee on committed events.
// An owner with an empty Email is ignored.
func WithOwner(owner Owner) Option {
	return func(o *options) {
		o.owner = owner
	}
}

// WithOverlapRecheck makes the committer fetch busy intervals for the slot
// again right before inserting the event and refuse a slot that became busy.
// This narrows the double-booking window; it does not close it.
func WithOverlapRecheck(source BusyIntervalSource) Option {
	return func(o *options) {
		o.recheck = source
	}
}

// WithRequestIDFunc replaces the generator of conference request ids.
func WithRequestIDFunc(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.requestID = fn
		}
	}
}

type noopObserver struct{}

func (noopObserver) RecordSlotsGenerated(context.Context, int) {}
func (noopObserver) RecordBooking(context.Context, string)     {}
