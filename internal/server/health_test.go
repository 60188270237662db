package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/slotbook/internal/config"
	"github.com/teemow/slotbook/internal/scheduler"
)

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)
	srv, err := NewHTTPServer(f.sc, HTTPServerConfig{})
	require.NoError(t, err)
	h := srv.Handler()

	rec := doRequest(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = doRequest(h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var ready HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, map[string]string{"ready": "ok", "shutdown": "ok", "calendar": "ok"}, ready.Checks)

	var detailed DetailedHealthResponse
	rec = doRequest(h, http.MethodGet, "/healthz/detailed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detailed))
	assert.Equal(t, "ok", detailed.Status)
	assert.NotEmpty(t, detailed.Uptime)
	assert.Equal(t, "primary", detailed.Calendar)
	assert.Equal(t, "UTC", detailed.Timezone)
	assert.Equal(t, f.sc.Policy().String(), detailed.Policy)
	assert.Equal(t, "ok", detailed.Checks["calendar"])
}

func TestReadiness_CalendarNotConfigured(t *testing.T) {
	policy, err := scheduler.NewPolicy(scheduler.DefaultPolicyConfig())
	require.NoError(t, err)

	tests := []struct {
		name   string
		cfg    config.Config
		source scheduler.BusyIntervalSource
	}{
		{
			name: "no busy interval source",
			cfg:  config.Config{CalendarID: "primary", AvailabilityWindowDays: 30},
		},
		{
			name: "no calendar id",
			cfg:  config.Config{AvailabilityWindowDays: 30},
			source: scheduler.BusyIntervalSourceFunc(func(context.Context, time.Time, time.Time) ([]scheduler.BusyInterval, error) {
				return nil, nil
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inserter := scheduler.EventInserterFunc(func(context.Context, scheduler.EventRequest) (scheduler.MeetingRecord, error) {
				return scheduler.MeetingRecord{}, nil
			})
			sc, err := NewServerContext(context.Background(), tt.cfg,
				scheduler.NewAvailability(policy, tt.source),
				scheduler.NewCommitter(policy, inserter))
			require.NoError(t, err)
			t.Cleanup(func() { _ = sc.Shutdown() })
			assert.False(t, sc.CalendarConfigured())

			srv, err := NewHTTPServer(sc, HTTPServerConfig{})
			require.NoError(t, err)

			rec := doRequest(srv.Handler(), http.MethodGet, "/readyz", "")
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "not ready", resp.Status)
			assert.Equal(t, "not configured", resp.Checks["calendar"])
			assert.Equal(t, "ok", resp.Checks["ready"])

			// Liveness never depends on the calendar
			rec = doRequest(srv.Handler(), http.MethodGet, "/healthz", "")
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestReadiness_NotReady(t *testing.T) {
	f := newFixture(t)
	srv, err := NewHTTPServer(f.sc, HTTPServerConfig{})
	require.NoError(t, err)
	srv.Health().SetReady(false)

	rec := doRequest(srv.Handler(), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not ready", resp.Status)
	assert.Equal(t, "not ready", resp.Checks["ready"])

	// Liveness is unaffected
	rec = doRequest(srv.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadiness_ShuttingDown(t *testing.T) {
	f := newFixture(t)
	srv, err := NewHTTPServer(f.sc, HTTPServerConfig{})
	require.NoError(t, err)
	require.NoError(t, f.sc.Shutdown())

	rec := doRequest(srv.Handler(), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "shutting down", resp.Checks["shutdown"])

	var detailed DetailedHealthResponse
	rec = doRequest(srv.Handler(), http.MethodGet, "/healthz/detailed", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detailed))
	assert.Equal(t, "shutting down", detailed.Status)
}
