// Package instrumentation provides OpenTelemetry instrumentation for slotbook.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, Google Calendar calls, and bookings
//   - Distributed tracing for request flows and Calendar calls
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//   - A booking audit trail with attendee PII hashed by default
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, route, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//   - http_rate_limited_total: Counter of requests rejected by the rate limiter
//
// Google API Metrics:
//   - google_api_operations_total: Counter of Calendar operations by operation and status
//   - google_api_operation_duration_seconds: Histogram of Calendar operation durations
//
// Scheduling Metrics:
//   - slots_generated: Histogram of slots returned per availability query
//   - bookings_total: Counter of booking attempts by result
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Tracing
//
// Spans are created for MCP tool invocations (tool.<name>) and Calendar
// calls (google.calendar.<operation>). HTTP server spans come from otelhttp.
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: slotbook)
//   - AUDIT_LOGGING_INCLUDE_PII: Log attendee addresses in the audit trail
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	recorder := provider.Metrics()
//	recorder.RecordGoogleAPIOperation(ctx, instrumentation.OperationFreeBusy, "success", "primary", time.Since(start))
//	recorder.RecordBooking(ctx, "committed")
package instrumentation
