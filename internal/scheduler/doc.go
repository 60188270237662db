// Package scheduler turns a working-hours policy and a snapshot of busy
// intervals into bookable meeting slots, and commits a chosen slot as a
// calendar event.
//
// The package has three moving parts:
//
//   - Policy: the immutable working-hours template (owner time zone, work
//     hours, slot length, lead time, excluded weekdays). It is validated once
//     by NewPolicy; a malformed policy is a *ConfigurationError.
//   - Generate: a pure function from (range, policy, busy intervals, now) to
//     an ordered list of slots. Availability wraps it with a
//     BusyIntervalSource so callers get "fetch then generate" in one call.
//   - Committer: re-validates a caller supplied slot against the clock and
//     asks an EventInserter to create exactly one event for it.
//
// Every failure returned by this package can be classified with KindOf into
// one of KindConfiguration, KindValidation, KindStaleSlot or KindUpstream.
//
// Generate and Policy are safe for concurrent use. Availability and
// Committer hold no mutable state and perform exactly one blocking call to
// their collaborator per operation (two when the optional overlap recheck is
// enabled on the committer). Nothing here serialises generate and commit:
// two callers may both see a slot as free and both commit it, and the
// calendar service decides the outcome.
//
// Example:
//
//	policy, err := scheduler.NewPolicy(scheduler.DefaultPolicyConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	slots := scheduler.Generate(start, end, policy, busy, time.Now())
package scheduler
