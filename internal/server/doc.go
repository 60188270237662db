// Package server exposes slotbook's scheduling services over HTTP.
//
// # Key Components
//
// ServerContext holds the Availability service and the booking Committer
// together with the optional metrics recorder and audit logger. The HTTP
// API, the MCP tools and the CLI all book through ServerContext.Book, so
// every attempt leaves exactly one audit record.
//
// HTTPServer routes the public API with chi:
//   - GET /availability returns {"slots": [...]} for a range
//   - POST /book commits one slot and returns the event id and Meet link
//   - /healthz, /readyz and /healthz/detailed serve Kubernetes probes
//   - /mcp serves the MCP streamable HTTP transport when configured
//
// Requests get an X-Request-Id, an access log line and HTTP metrics labelled
// with the route pattern. POST /book is rate limited per client, either in
// process or through a shared Redis counter.
//
// MetricsServer serves Prometheus metrics on a dedicated port.
package server
