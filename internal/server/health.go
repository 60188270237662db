package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Health status constants for health check responses.
const (
	healthStatusOK            = "ok"
	healthStatusNotReady      = "not ready"
	healthStatusShuttingDown  = "shutting down"
	healthStatusNotConfigured = "not configured"
)

// Readiness check names.
const (
	checkReady    = "ready"
	checkShutdown = "shutdown"
	checkCalendar = "calendar"
)

// HealthChecker provides health check endpoints for Kubernetes probes.
type HealthChecker struct {
	// ready is cleared while the server drains
	ready atomic.Bool
	// serverContext provides the scheduling services the checks inspect
	serverContext *ServerContext
	startTime     time.Time
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse adds what the scheduler is serving to the checks.
type DetailedHealthResponse struct {
	Status   string            `json:"status"`
	Uptime   string            `json:"uptime"`
	Calendar string            `json:"calendar,omitempty"`
	Timezone string            `json:"timezone,omitempty"`
	Policy   string            `json:"policy,omitempty"`
	Checks   map[string]string `json:"checks"`
}

// runChecks evaluates every readiness check. The returned status is the
// first failing check's status, or ok.
func (h *HealthChecker) runChecks() (string, map[string]string) {
	checks := map[string]string{
		checkReady:    healthStatusOK,
		checkShutdown: healthStatusOK,
		checkCalendar: healthStatusOK,
	}
	status := healthStatusOK

	if !h.ready.Load() {
		checks[checkReady] = healthStatusNotReady
		status = healthStatusNotReady
	}

	sc := h.serverContext
	if sc == nil {
		return status, checks
	}

	if sc.IsShutdown() {
		checks[checkShutdown] = healthStatusShuttingDown
		if status == healthStatusOK {
			status = healthStatusShuttingDown
		}
	}
	// Without both collaborators /availability and /book can only fail.
	if !sc.CalendarConfigured() {
		checks[checkCalendar] = healthStatusNotConfigured
		if status == healthStatusOK {
			status = healthStatusNotReady
		}
	}
	return status, checks
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
// Liveness only says the process is serving; it never looks at the calendar.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		status, checks := h.runChecks()
		response := HealthResponse{Checks: checks}
		if status == healthStatusOK {
			response.Status = healthStatusOK
			w.WriteHeader(http.StatusOK)
		} else {
			response.Status = healthStatusNotReady
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(response)
	})
}

// handleRegistrar is satisfied by *http.ServeMux and chi.Router.
type handleRegistrar interface {
	Handle(pattern string, handler http.Handler)
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux handleRegistrar) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed
// endpoint: the readiness checks plus the calendar and policy being served.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		status, checks := h.runChecks()
		response := DetailedHealthResponse{
			Status: status,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
			Checks: checks,
		}
		if sc := h.serverContext; sc != nil {
			response.Calendar = sc.Config().CalendarID
			response.Timezone = sc.Policy().Timezone()
			response.Policy = sc.Policy().String()
		}

		if status == healthStatusOK {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(response)
	})
}
