package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teemow/slotbook/internal/logging"
)

// BusyIntervalSource supplies the owner's busy intervals for a range. Bounds
// that are missing or unparseable upstream are dropped by the implementation.
type BusyIntervalSource interface {
	BusyIntervals(ctx context.Context, start, end time.Time) ([]BusyInterval, error)
}

// BusyIntervalSourceFunc adapts a function to BusyIntervalSource.
type BusyIntervalSourceFunc func(ctx context.Context, start, end time.Time) ([]BusyInterval, error)

// BusyIntervals calls f.
func (f BusyIntervalSourceFunc) BusyIntervals(ctx context.Context, start, end time.Time) ([]BusyInterval, error) {
	return f(ctx, start, end)
}

// Availability fetches busy intervals and generates slots from them.
type Availability struct {
	policy *Policy
	source BusyIntervalSource
	opts   options
}

// NewAvailability returns an Availability over source.
func NewAvailability(policy *Policy, source BusyIntervalSource, opts ...Option) *Availability {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Availability{policy: policy, source: source, opts: o}
}

// Policy returns the policy slots are generated with.
func (a *Availability) Policy() *Policy {
	return a.policy
}

// HasSource reports whether a busy interval source is configured.
func (a *Availability) HasSource() bool {
	return a.source != nil
}

// Now returns the current instant as seen by a.
func (a *Availability) Now() time.Time {
	return a.opts.now()
}

// FindSlots returns the bookable slots between start and end.
//
// Either every slot is returned or an error is: a failed or timed out fetch
// never degrades into "no busy intervals". A start after end returns an
// empty list without contacting the source.
func (a *Availability) FindSlots(ctx context.Context, start, end time.Time) ([]Slot, error) {
	if start.After(end) {
		return []Slot{}, nil
	}

	fetchStart, fetchEnd := a.fetchSpan(start, end)
	busy, err := fetchBusy(ctx, a.source, fetchStart, fetchEnd, a.opts.fetchTimeout)
	if err != nil {
		a.opts.logger.Warn("busy interval fetch failed",
			"range_start", start, "range_end", end, "timeout", IsTimeout(err), logging.Err(err))
		return nil, err
	}

	slots := Generate(start, end, a.policy, busy, a.opts.now())
	a.opts.observer.RecordSlotsGenerated(ctx, len(slots))
	a.opts.logger.Debug("generated slots",
		"range_start", start, "range_end", end, "busy", len(busy), "slots", len(slots))
	return slots, nil
}

// fetchSpan widens [start, end] to cover every slot Generate can emit for it.
// The first and last days are tiled whole, so their working windows may reach
// outside the requested range.
func (a *Availability) fetchSpan(start, end time.Time) (time.Time, time.Time) {
	loc := a.policy.Location()
	firstStart, _ := a.policy.Window(DateOf(start, loc))
	_, lastEnd := a.policy.Window(DateOf(end, loc))
	if firstStart.Before(start) {
		start = firstStart
	}
	if lastEnd.After(end) {
		end = lastEnd
	}
	return start, end
}

func fetchBusy(ctx context.Context, source BusyIntervalSource, start, end time.Time, timeout time.Duration) ([]BusyInterval, error) {
	if source == nil {
		return nil, &UpstreamError{Op: OpFetch, Err: errors.New("no busy interval source configured")}
	}

	fetchCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	busy, err := source.BusyIntervals(fetchCtx, start, end)
	if err == nil {
		return busy, nil
	}

	if KindOf(err) == KindUpstream {
		return nil, err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
		return nil, &UpstreamError{Op: OpFetch, Timeout: true, Err: fmt.Errorf("%w: %w", ErrFetchTimeout, err)}
	}
	return nil, &UpstreamError{Op: OpFetch, Err: err}
}
