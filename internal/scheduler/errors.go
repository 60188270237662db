package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies every error this package returns.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors that did not originate here.
	KindUnknown Kind = iota
	// KindConfiguration marks a malformed policy. Fatal at startup.
	KindConfiguration
	// KindValidation marks malformed booking request fields.
	KindValidation
	// KindStaleSlot marks a slot that is no longer bookable at commit time.
	KindStaleSlot
	// KindUpstream marks a calendar service failure on fetch or commit.
	KindUpstream
)

// String returns the lower-case name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindStaleSlot:
		return "stale_slot"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Upstream operations.
const (
	OpFetch  = "fetch"
	OpCommit = "commit"
)

var (
	// ErrFetchTimeout is wrapped by the UpstreamError returned when fetching
	// busy intervals runs past its deadline.
	ErrFetchTimeout = errors.New("timed out fetching busy intervals")

	// ErrSlotConflict is wrapped by the StaleSlotError returned when the
	// optional commit-time recheck finds the slot busy.
	ErrSlotConflict = errors.New("slot overlaps a busy interval")
)

// ConfigurationError reports a policy that cannot be used.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid scheduling policy: %s %s", e.Field, e.Reason)
}

// ValidationError reports a malformed booking request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == reasonRequired {
		return "missing required field: " + e.Field
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

const reasonRequired = "is required"

// StaleSlotError reports a slot that aged out, or became busy, between
// generation and commit. Callers should generate slots again.
type StaleSlotError struct {
	Start time.Time
	Now   time.Time
	Err   error
}

func (e *StaleSlotError) Error() string {
	if errors.Is(e.Err, ErrSlotConflict) {
		return fmt.Sprintf("slot starting %s is no longer available", e.Start.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("slot start %s is not in the future", e.Start.UTC().Format(time.RFC3339))
}

func (e *StaleSlotError) Unwrap() error {
	return e.Err
}

// UpstreamError reports a failure of the calendar service. Op is OpFetch or
// OpCommit. A commit failure must not be retried blindly: the event may have
// been created before the error surfaced.
type UpstreamError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("calendar %s timed out: %v", e.Op, e.Err)
	case e.Op == OpCommit:
		return fmt.Sprintf("failed to create calendar event: %v", e.Err)
	default:
		return fmt.Sprintf("failed to fetch busy intervals: %v", e.Err)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// KindOf classifies err, looking through wrapping.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var cfgErr *ConfigurationError
	var valErr *ValidationError
	var staleErr *StaleSlotError
	var upErr *UpstreamError

	switch {
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &valErr):
		return KindValidation
	case errors.As(err, &staleErr):
		return KindStaleSlot
	case errors.As(err, &upErr):
		return KindUpstream
	default:
		return KindUnknown
	}
}

// IsTimeout reports whether err is a busy interval fetch that ran out of time.
func IsTimeout(err error) bool {
	var upErr *UpstreamError
	return errors.As(err, &upErr) && upErr.Timeout
}
