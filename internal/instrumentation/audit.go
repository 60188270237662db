package instrumentation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/slotbook/internal/logging"
)

// BookingEvent captures one booking attempt for the audit trail.
//
// # Privacy Considerations
//
// AttendeeEmail and AttendeeName are PII submitted by the public. Unless
// the audit logger is configured with IncludePII they are reduced to a
// hash and a domain before logging.
type BookingEvent struct {
	// Source is the surface the request came through (http, mcp, cli).
	Source string

	AttendeeEmail string
	AttendeeName  string
	Company       string

	SlotStart time.Time
	SlotEnd   time.Time

	// Result is a booking result such as "committed" or "stale".
	Result    string
	EventID   string
	RequestID string
	Error     string
	Duration  time.Duration

	TraceID string
	SpanID  string
}

// Committed reports whether the event describes a created meeting.
func (e *BookingEvent) Committed() bool {
	return e.EventID != "" && e.Error == ""
}

// WithSpanContext copies trace ids from the span in ctx.
func (e *BookingEvent) WithSpanContext(ctx context.Context) *BookingEvent {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		e.TraceID = span.SpanContext().TraceID().String()
		e.SpanID = span.SpanContext().SpanID().String()
	}
	return e
}

// LogAttrs returns slog attributes with attendee data anonymized.
func (e *BookingEvent) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("source", e.Source),
		slog.String("result", e.Result),
		logging.AttendeeHash(e.AttendeeEmail),
		slog.String(logging.KeyDomain, ExtractUserDomain(e.AttendeeEmail)),
	}
	return append(attrs, e.commonAttrs()...)
}

// LogAuditAttrs returns slog attributes including the attendee's address,
// name, and company.
//
// # Security Warning
//
// This method includes PII. Ensure audit logs are:
//   - Stored securely with appropriate access controls
//   - Not exposed to general monitoring dashboards
func (e *BookingEvent) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("source", e.Source),
		slog.String("result", e.Result),
		slog.String("attendee_email", e.AttendeeEmail),
		slog.String("attendee_name", e.AttendeeName),
	}
	if e.Company != "" {
		attrs = append(attrs, slog.String("attendee_company", e.Company))
	}
	return append(attrs, e.commonAttrs()...)
}

func (e *BookingEvent) commonAttrs() []slog.Attr {
	var attrs []slog.Attr
	if !e.SlotStart.IsZero() {
		attrs = append(attrs, logging.SlotStart(e.SlotStart))
	}
	if !e.SlotEnd.IsZero() {
		attrs = append(attrs, slog.String("slot_end", e.SlotEnd.UTC().Format(time.RFC3339)))
	}
	if e.EventID != "" {
		attrs = append(attrs, slog.String("event_id", e.EventID))
	}
	if e.RequestID != "" {
		attrs = append(attrs, logging.RequestID(e.RequestID))
	}
	if e.Duration > 0 {
		attrs = append(attrs, slog.Duration(logging.KeyDuration, e.Duration))
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", e.SpanID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, e.Error))
	}
	return attrs
}

// ToolInvocation captures one MCP tool call for the audit trail.
type ToolInvocation struct {
	Tool string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation creates a new ToolInvocation with timing started.
// Call Complete() when the tool operation finishes.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// WithSpanContext extracts trace context from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ti.TraceID = span.SpanContext().TraceID().String()
		ti.SpanID = span.SpanContext().SpanID().String()
	}
	return ti
}

// Complete marks the invocation as completed and calculates duration.
// Returns the same ToolInvocation for method chaining.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// CompleteWithError marks the invocation as failed with the given error.
func (ti *ToolInvocation) CompleteWithError(err error) *ToolInvocation {
	return ti.Complete(false, err)
}

// CompleteSuccess marks the invocation as successful.
func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	return ti.Complete(true, nil)
}

// LogAttrs returns slog attributes for structured logging.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String(logging.KeyTool, ti.Tool),
		slog.Duration(logging.KeyDuration, ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, ti.Error))
	}
	return attrs
}

// AuditLogger writes booking and tool audit records.
// A nil *AuditLogger is valid and logs nothing.
type AuditLogger struct {
	logger     *slog.Logger
	level      slog.Level
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger with PII disabled.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		level:      parseLevel(config.LogLevel),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// SetIncludePII sets whether to include attendee PII in audit logs.
func (al *AuditLogger) SetIncludePII(include bool) {
	al.includePII = include
}

// SetEnabled sets whether audit logging is enabled.
func (al *AuditLogger) SetEnabled(enabled bool) {
	al.enabled = enabled
}

// LogBooking logs a booking attempt as booking_committed or booking_rejected.
// Rejections are logged at WARN.
func (al *AuditLogger) LogBooking(ctx context.Context, ev *BookingEvent) {
	if al == nil || !al.enabled || ev == nil {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = ev.LogAuditAttrs()
	} else {
		attrs = ev.LogAttrs()
	}

	if ev.Committed() {
		al.logger.LogAttrs(ctx, al.level, "booking_committed", attrs...)
		return
	}
	al.logger.LogAttrs(ctx, slog.LevelWarn, "booking_rejected", attrs...)
}

// LogToolInvocation logs an MCP tool call as tool_executed or tool_failed.
func (al *AuditLogger) LogToolInvocation(ctx context.Context, ti *ToolInvocation) {
	if al == nil || !al.enabled || ti == nil {
		return
	}

	if ti.Success {
		al.logger.LogAttrs(ctx, al.level, "tool_executed", ti.LogAttrs()...)
		return
	}
	al.logger.LogAttrs(ctx, slog.LevelWarn, "tool_failed", ti.LogAttrs()...)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
