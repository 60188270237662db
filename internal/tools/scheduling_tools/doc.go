// Package scheduling_tools exposes slot search and booking as MCP tools.
//
// Tools:
//   - scheduling_find_slots: list open slots in a range, as text grouped by
//     day or as a JSON array
//   - scheduling_book_slot: commit one slot as a calendar event with a video link
//
// Both tools go through the same ServerContext as the HTTP API, so bookings
// made here are audited and counted exactly like web bookings.
package scheduling_tools
