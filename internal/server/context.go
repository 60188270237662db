package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/slotbook/internal/config"
	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/logging"
	"github.com/teemow/slotbook/internal/scheduler"
)

// Booking sources recorded in the audit trail.
const (
	SourceHTTP = "http"
	SourceMCP  = "mcp"
	SourceCLI  = "cli"
)

// ServerContext holds the scheduling services shared by the HTTP API, the
// MCP tools and the CLI.
type ServerContext struct {
	ctx          context.Context
	cancel       context.CancelFunc
	config       config.Config
	availability *scheduler.Availability
	committer    *scheduler.Committer
	metrics      *instrumentation.Metrics
	auditLogger  *instrumentation.AuditLogger
	logger       *slog.Logger
	mu           sync.RWMutex
	shutdown     bool
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, cfg config.Config, availability *scheduler.Availability, committer *scheduler.Committer) (*ServerContext, error) {
	if availability == nil {
		return nil, errors.New("availability service is required")
	}
	if committer == nil {
		return nil, errors.New("booking committer is required")
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:          shutdownCtx,
		cancel:       cancel,
		config:       cfg,
		availability: availability,
		committer:    committer,
		logger:       slog.Default(),
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Config returns the configuration the services were built from.
func (sc *ServerContext) Config() config.Config {
	return sc.config
}

// Policy returns the scheduling policy.
func (sc *ServerContext) Policy() *scheduler.Policy {
	return sc.availability.Policy()
}

// Now returns the current instant as seen by the scheduler.
func (sc *ServerContext) Now() time.Time {
	return sc.availability.Now()
}

// DefaultRange returns the range used when a caller leaves start or end out.
func (sc *ServerContext) DefaultRange() (start, end time.Time) {
	now := sc.Now()
	return now, now.Add(sc.config.AvailabilityWindow())
}

// CalendarConfigured reports whether both calendar collaborators are wired
// and a calendar is named.
func (sc *ServerContext) CalendarConfigured() bool {
	return sc.config.CalendarID != "" && sc.availability.HasSource() && sc.committer.HasInserter()
}

// SetMetrics sets the metrics recorder used by HTTP middleware and tool handlers.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the metrics recorder, or nil when instrumentation is off.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the audit logger for bookings and tool invocations.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

// AuditLogger returns the audit logger, or nil when none is configured.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// SetLogger replaces the operational logger.
func (sc *ServerContext) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.logger = logger
}

// Logger returns the operational logger.
func (sc *ServerContext) Logger() *slog.Logger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.logger
}

// FindSlots returns the bookable slots between start and end.
func (sc *ServerContext) FindSlots(ctx context.Context, start, end time.Time) ([]scheduler.Slot, error) {
	ctx, span := instrumentation.StartSpan(ctx, "slotbook.find_slots")
	defer span.End()

	slots, err := sc.availability.FindSlots(ctx, start, end)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithSlotCount(len(slots)).Build()...)
	instrumentation.SetSpanSuccess(span)
	return slots, nil
}

// Book commits req and writes one audit record for the attempt, whatever
// its outcome.
func (sc *ServerContext) Book(ctx context.Context, source, requestID string, req scheduler.BookingRequest) (scheduler.MeetingRecord, error) {
	ctx, span := instrumentation.StartSpan(ctx, "slotbook.book")
	defer span.End()

	start := time.Now()
	record, err := sc.committer.Commit(ctx, req)

	event := &instrumentation.BookingEvent{
		Source:        source,
		AttendeeEmail: req.AttendeeEmail,
		AttendeeName:  req.AttendeeName,
		Company:       req.AttendeeCompany,
		SlotStart:     req.Slot.Start,
		SlotEnd:       req.Slot.End,
		Result:        BookingResult(err),
		EventID:       record.EventID,
		RequestID:     requestID,
		Duration:      time.Since(start),
	}
	if err != nil {
		event.Error = err.Error()
		instrumentation.SetSpanError(span, err)
	} else {
		span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithEventID(record.EventID).Build()...)
		instrumentation.SetSpanSuccess(span)
	}
	sc.AuditLogger().LogBooking(ctx, event.WithSpanContext(ctx))

	if err != nil {
		return scheduler.MeetingRecord{}, err
	}
	return record, nil
}

// BookingResult maps a Commit error to the booking result label.
func BookingResult(err error) string {
	switch scheduler.KindOf(err) {
	case scheduler.KindUnknown:
		if err == nil {
			return scheduler.BookingResultCommitted
		}
		return scheduler.BookingResultFailed
	case scheduler.KindValidation:
		return scheduler.BookingResultInvalid
	case scheduler.KindStaleSlot:
		if errors.Is(err, scheduler.ErrSlotConflict) {
			return scheduler.BookingResultConflict
		}
		return scheduler.BookingResultStale
	default:
		return scheduler.BookingResultFailed
	}
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	sc.logger.Debug("server context shut down", logging.Operation("shutdown"))
	return nil
}

// String describes the context for startup logs.
func (sc *ServerContext) String() string {
	return fmt.Sprintf("calendar=%s policy=%s", sc.config.CalendarID, sc.Policy())
}
