package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

const (
	testEmail     = "jane@example.com"
	testDomain    = "example.com"
	testEventID   = "evt123"
	testToolFind  = "scheduling_find_slots"
	testToolBook  = "scheduling_book_slot"
	testRequestID = "slotbook-1"
)

func testBookingEvent() *BookingEvent {
	return &BookingEvent{
		Source:        SourceHTTP,
		AttendeeEmail: testEmail,
		AttendeeName:  "Jane Doe",
		Company:       "Acme",
		SlotStart:     time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		SlotEnd:       time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC),
		Result:        "committed",
		EventID:       testEventID,
		RequestID:     testRequestID,
	}
}

func attrMap(attrs []slog.Attr) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value.String()
	}
	return m
}

// jsonAuditLogger returns an audit logger writing JSON lines into buf.
func jsonAuditLogger(buf *bytes.Buffer, cfg AuditLoggingConfig) *AuditLogger {
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewAuditLoggerWithConfig(logger, cfg)
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	return rec
}

func TestBookingEvent_LogAttrs_Anonymized(t *testing.T) {
	attrs := attrMap(testBookingEvent().LogAttrs())

	if attrs["attendee_domain"] != testDomain {
		t.Errorf("attendee_domain = %q, want %q", attrs["attendee_domain"], testDomain)
	}
	if !strings.HasPrefix(attrs["attendee_hash"], "attendee:") {
		t.Errorf("attendee_hash = %q", attrs["attendee_hash"])
	}
	for k, v := range attrs {
		if strings.Contains(v, testEmail) || strings.Contains(v, "Jane Doe") {
			t.Errorf("attribute %s leaks PII: %q", k, v)
		}
	}
	if attrs["slot_start"] != "2024-03-04T10:00:00Z" {
		t.Errorf("slot_start = %q", attrs["slot_start"])
	}
	if attrs["event_id"] != testEventID {
		t.Errorf("event_id = %q", attrs["event_id"])
	}
}

func TestBookingEvent_LogAuditAttrs(t *testing.T) {
	attrs := attrMap(testBookingEvent().LogAuditAttrs())

	if attrs["attendee_email"] != testEmail {
		t.Errorf("attendee_email = %q", attrs["attendee_email"])
	}
	if attrs["attendee_company"] != "Acme" {
		t.Errorf("attendee_company = %q", attrs["attendee_company"])
	}
	if attrs["request_id"] != testRequestID {
		t.Errorf("request_id = %q", attrs["request_id"])
	}
}

func TestBookingEvent_MinimalFields(t *testing.T) {
	ev := &BookingEvent{Source: SourceCLI, Result: "invalid", Error: "missing required field: email"}
	attrs := attrMap(ev.LogAttrs())

	for _, absent := range []string{"slot_start", "slot_end", "event_id", "request_id", "trace_id"} {
		if _, ok := attrs[absent]; ok {
			t.Errorf("%s should be omitted when empty", absent)
		}
	}
	if attrs["attendee_domain"] != "unknown" {
		t.Errorf("attendee_domain = %q, want unknown", attrs["attendee_domain"])
	}
	if ev.Committed() {
		t.Error("event with error should not be committed")
	}
}

func TestAuditLogger_LogBooking(t *testing.T) {
	t.Run("committed", func(t *testing.T) {
		var buf bytes.Buffer
		al := jsonAuditLogger(&buf, AuditLoggingConfig{Enabled: true})
		al.LogBooking(context.Background(), testBookingEvent())

		rec := decodeLine(t, &buf)
		if rec["msg"] != "booking_committed" {
			t.Errorf("msg = %v", rec["msg"])
		}
		if rec["level"] != "INFO" {
			t.Errorf("level = %v", rec["level"])
		}
		if strings.Contains(buf.String(), testEmail) {
			t.Error("email logged without IncludePII")
		}
	})

	t.Run("rejected", func(t *testing.T) {
		var buf bytes.Buffer
		al := jsonAuditLogger(&buf, AuditLoggingConfig{Enabled: true})
		ev := testBookingEvent()
		ev.EventID = ""
		ev.Result = "stale"
		ev.Error = "slot is no longer available"
		al.LogBooking(context.Background(), ev)

		rec := decodeLine(t, &buf)
		if rec["msg"] != "booking_rejected" || rec["level"] != "WARN" {
			t.Errorf("got msg=%v level=%v", rec["msg"], rec["level"])
		}
	})

	t.Run("include pii", func(t *testing.T) {
		var buf bytes.Buffer
		al := jsonAuditLogger(&buf, AuditLoggingConfig{Enabled: true, IncludePII: true})
		al.LogBooking(context.Background(), testBookingEvent())

		if rec := decodeLine(t, &buf); rec["attendee_email"] != testEmail {
			t.Errorf("attendee_email = %v", rec["attendee_email"])
		}
	})

	t.Run("disabled", func(t *testing.T) {
		var buf bytes.Buffer
		al := jsonAuditLogger(&buf, AuditLoggingConfig{Enabled: false})
		al.LogBooking(context.Background(), testBookingEvent())
		if buf.Len() != 0 {
			t.Errorf("disabled logger wrote %q", buf.String())
		}
	})

	t.Run("configured level", func(t *testing.T) {
		var buf bytes.Buffer
		al := jsonAuditLogger(&buf, AuditLoggingConfig{Enabled: true, LogLevel: "debug"})
		al.LogBooking(context.Background(), testBookingEvent())
		if rec := decodeLine(t, &buf); rec["level"] != "DEBUG" {
			t.Errorf("level = %v", rec["level"])
		}
	})
}

func TestAuditLogger_NilSafe(t *testing.T) {
	var al *AuditLogger
	// Should not panic
	al.LogBooking(context.Background(), testBookingEvent())
	al.LogToolInvocation(context.Background(), NewToolInvocation(testToolFind))
}

func TestAuditLogger_New(t *testing.T) {
	// Test with nil logger (should use default)
	al := NewAuditLogger(nil)
	if al.logger == nil {
		t.Error("logger should not be nil when created with nil")
	}
	if !al.enabled || al.includePII {
		t.Error("NewAuditLogger should be enabled without PII")
	}

	al.SetIncludePII(true)
	al.SetEnabled(false)
	if !al.includePII || al.enabled {
		t.Error("setters did not apply")
	}
}

func TestToolInvocation_NewAndComplete(t *testing.T) {
	ti := NewToolInvocation(testToolFind)

	if ti.Tool != testToolFind {
		t.Errorf("Tool = %q, want %q", ti.Tool, testToolFind)
	}
	if ti.StartTime.IsZero() {
		t.Error("StartTime should not be zero")
	}

	ti.CompleteSuccess()

	if !ti.Success {
		t.Error("Success should be true")
	}
	if ti.Duration < 0 {
		t.Error("Duration should not be negative")
	}
	if ti.Status() != StatusSuccess {
		t.Errorf("Status() = %q", ti.Status())
	}
}

func TestToolInvocation_CompleteWithError(t *testing.T) {
	ti := NewToolInvocation(testToolBook)
	ti.CompleteWithError(errors.New("slot is no longer available"))

	if ti.Success {
		t.Error("Success should be false")
	}
	if ti.Error != "slot is no longer available" {
		t.Errorf("Error = %q", ti.Error)
	}
	if ti.Status() != StatusError {
		t.Errorf("Status() = %q", ti.Status())
	}

	attrs := attrMap(ti.LogAttrs())
	if attrs["error"] != "slot is no longer available" {
		t.Errorf("error attr = %q", attrs["error"])
	}
}

func TestAuditLogger_LogToolInvocation(t *testing.T) {
	var buf bytes.Buffer
	al := jsonAuditLogger(&buf, AuditLoggingConfig{Enabled: true})

	al.LogToolInvocation(context.Background(), NewToolInvocation(testToolBook).CompleteWithError(errors.New("boom")))
	rec := decodeLine(t, &buf)
	if rec["msg"] != "tool_failed" || rec["tool"] != testToolBook {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestToolInvocation_WithSpanContext_NoSpan(t *testing.T) {
	ti := NewToolInvocation("test").WithSpanContext(context.Background())

	if ti.TraceID != "" {
		t.Errorf("TraceID = %q, want empty string", ti.TraceID)
	}
	if ti.SpanID != "" {
		t.Errorf("SpanID = %q, want empty string", ti.SpanID)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
