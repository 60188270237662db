// Package resources provides MCP resources for exposing scheduling data.
// Resources are read-only data sources that MCP clients can fetch, such as
// the working hours and slot length a booking must fit.
package resources
