// Package cmd implements the command-line interface for slotbook.
//
// This package provides the following commands:
//   - serve: Start the HTTP API (GET /availability, POST /book) and the metrics server
//   - mcp: Start the MCP server over stdio or streamable HTTP
//   - slots: Print open slots for a range
//   - book: Book one slot
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// Configuration is read from the environment and .env files by the config
// package; flags override it.
package cmd
