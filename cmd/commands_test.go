package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/slotbook/internal/config"
	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/scheduler"
	"github.com/teemow/slotbook/internal/server"
	"github.com/teemow/slotbook/internal/tools/scheduling_tools"
)

// testNow is a Monday morning before working hours.
var testNow = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

type cliFixture struct {
	sc        *server.ServerContext
	busy      []scheduler.BusyInterval
	record    scheduler.MeetingRecord
	insertErr error
	audit     bytes.Buffer
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	f := &cliFixture{
		record: scheduler.MeetingRecord{
			EventID:        "evt-42",
			ConferenceLink: "https://meet.google.com/abc-defg-hij",
			HTMLLink:       "https://calendar.google.com/event?eid=evt-42",
		},
	}

	policy, err := scheduler.NewPolicy(scheduler.DefaultPolicyConfig())
	require.NoError(t, err)

	source := scheduler.BusyIntervalSourceFunc(func(context.Context, time.Time, time.Time) ([]scheduler.BusyInterval, error) {
		return f.busy, nil
	})
	inserter := scheduler.EventInserterFunc(func(context.Context, scheduler.EventRequest) (scheduler.MeetingRecord, error) {
		return f.record, f.insertErr
	})
	opts := []scheduler.Option{
		scheduler.WithClock(func() time.Time { return testNow }),
		scheduler.WithLogger(slog.New(slog.DiscardHandler)),
	}

	sc, err := server.NewServerContext(context.Background(),
		config.Config{CalendarID: "primary", AvailabilityWindowDays: 30},
		scheduler.NewAvailability(policy, source, opts...),
		scheduler.NewCommitter(policy, inserter, opts...))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	sc.SetLogger(slog.New(slog.DiscardHandler))
	sc.SetAuditLogger(instrumentation.NewAuditLogger(slog.New(slog.NewJSONHandler(&f.audit, nil))))
	f.sc = sc
	return f
}

func TestParseRange(t *testing.T) {
	f := newCLIFixture(t)

	start, end, err := parseRange(f.sc, "", "")
	require.NoError(t, err)
	assert.Equal(t, testNow, start)
	assert.Equal(t, testNow.AddDate(0, 0, 30), end)

	start, end, err = parseRange(f.sc, "2025-06-10", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC), end)

	_, end, err = parseRange(f.sc, "2025-06-10", "2025-06-11T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC), end)

	_, _, err = parseRange(f.sc, "next week", "")
	assert.ErrorContains(t, err, "invalid --start")

	_, _, err = parseRange(f.sc, "", "soon")
	assert.ErrorContains(t, err, "invalid --end")
}

func TestRunSlots_Text(t *testing.T) {
	f := newCLIFixture(t)
	f.busy = []scheduler.BusyInterval{{
		Start: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC),
	}}

	var out bytes.Buffer
	err := runSlots(context.Background(), &out, f.sc,
		time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 2, 23, 59, 0, 0, time.UTC), false)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "16 open slot(s), UTC, 30m0s each:")
	assert.Contains(t, text, "Mon 2025-06-02: 09:00 09:30 11:00 11:30")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(text), "17:30"))
}

func TestRunSlots_NoSlots(t *testing.T) {
	f := newCLIFixture(t)

	var out bytes.Buffer
	// Saturday
	err := runSlots(context.Background(), &out, f.sc,
		time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC), false)
	require.NoError(t, err)
	assert.Equal(t, "No open slots.\n", out.String())
}

func TestRunSlots_JSON(t *testing.T) {
	f := newCLIFixture(t)

	var out bytes.Buffer
	err := runSlots(context.Background(), &out, f.sc,
		time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC), true)
	require.NoError(t, err)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.JSONEq(t, `[]`, string(body["slots"]))
}

func TestBookingRequest(t *testing.T) {
	f := newCLIFixture(t)

	req, err := bookingRequest(f.sc, "Ada Lovelace", "ada@example.com", "Analytical Engines", "2025-06-02T10:00:00Z", "")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", req.AttendeeName)
	assert.Equal(t, "ada@example.com", req.AttendeeEmail)
	assert.Equal(t, "Analytical Engines", req.AttendeeCompany)
	assert.Equal(t, time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC), req.Slot.End)

	req, err = bookingRequest(f.sc, "Ada", "ada@example.com", "AE", "2025-06-02T10:00:00Z", "2025-06-02T11:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC), req.Slot.End)

	_, err = bookingRequest(f.sc, "Ada", "ada@example.com", "AE", "10am", "")
	assert.ErrorContains(t, err, "invalid --start")

	_, err = bookingRequest(f.sc, "Ada", "ada@example.com", "AE", "2025-06-02T10:00:00Z", "later")
	assert.ErrorContains(t, err, "invalid --end")
}

func testBooking(t *testing.T, f *cliFixture) scheduler.BookingRequest {
	t.Helper()
	req, err := bookingRequest(f.sc, "Ada Lovelace", "ada@example.com", "Analytical Engines", "2025-06-02T10:00:00Z", "")
	require.NoError(t, err)
	return req
}

func TestRunBook_Text(t *testing.T) {
	f := newCLIFixture(t)

	var out bytes.Buffer
	require.NoError(t, runBook(context.Background(), &out, f.sc, testBooking(t, f), false))

	text := out.String()
	assert.Contains(t, text, "Booked Mon 2025-06-02 10:00-10:30 UTC")
	assert.Contains(t, text, "Event ID:  evt-42")
	assert.Contains(t, text, "Meet link: https://meet.google.com/abc-defg-hij")
	assert.Contains(t, text, "Calendar:  https://calendar.google.com/event?eid=evt-42")

	var audit map[string]any
	require.NoError(t, json.Unmarshal(f.audit.Bytes(), &audit))
	assert.Equal(t, server.SourceCLI, audit["source"])
}

func TestRunBook_JSON(t *testing.T) {
	t.Run("with meet link", func(t *testing.T) {
		f := newCLIFixture(t)

		var out bytes.Buffer
		require.NoError(t, runBook(context.Background(), &out, f.sc, testBooking(t, f), true))
		assert.JSONEq(t, `{"success":true,"eventId":"evt-42","meetLink":"https://meet.google.com/abc-defg-hij"}`, out.String())
	})

	t.Run("without meet link", func(t *testing.T) {
		f := newCLIFixture(t)
		f.record.ConferenceLink = ""

		var out bytes.Buffer
		require.NoError(t, runBook(context.Background(), &out, f.sc, testBooking(t, f), true))
		assert.JSONEq(t, `{"success":true,"eventId":"evt-42","meetLink":null}`, out.String())
	})
}

func TestRunBook_Errors(t *testing.T) {
	t.Run("upstream failure", func(t *testing.T) {
		f := newCLIFixture(t)
		f.insertErr = errors.New("quota exceeded")

		var out bytes.Buffer
		err := runBook(context.Background(), &out, f.sc, testBooking(t, f), false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "booking failed")
		assert.Empty(t, out.String())
	})

	t.Run("slot in the past", func(t *testing.T) {
		f := newCLIFixture(t)
		req, err := bookingRequest(f.sc, "Ada", "ada@example.com", "AE", "2025-05-30T10:00:00Z", "")
		require.NoError(t, err)

		err = runBook(context.Background(), &bytes.Buffer{}, f.sc, req, false)
		assert.Equal(t, scheduler.KindStaleSlot, scheduler.KindOf(err))
	})
}

func TestGenerateToolsMarkdown(t *testing.T) {
	tools, err := listTools()
	require.NoError(t, err)
	require.Len(t, tools, 2)

	md := generateToolsMarkdown(tools)
	assert.Contains(t, md, "# MCP Tools Reference")
	assert.Contains(t, md, "running slotbook as an MCP server")
	assert.Contains(t, md, "- [Scheduling Tools](#scheduling-tools)")
	assert.Contains(t, md, "### "+scheduling_tools.ToolFindSlots)
	assert.Contains(t, md, "### "+scheduling_tools.ToolBookSlot)
	assert.Contains(t, md, "- `email` (required): ")
	assert.Contains(t, md, "- `end` (optional): ")
}
