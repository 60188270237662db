// Package logging provides structured logging utilities for slotbook.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Text or JSON handlers selected by NewLogger
//   - PII sanitization (attendee email hashing)
//   - Consistent attribute naming across the codebase
//   - RedisAdapter, which routes go-redis client logs into slog
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "book")
//	logger.Info("booking committed",
//	    logging.AttendeeHash(req.AttendeeEmail),
//	    logging.SlotStart(req.Slot.Start))
//
// # Security Considerations
//
// Attendees submit their name and address through a public page. Outside the
// booking audit stream, addresses are only ever logged hashed or reduced to
// their domain, and credentials are never logged at all.
package logging
