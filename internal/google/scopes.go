package google

import calendar "google.golang.org/api/calendar/v3"

// DefaultScopes are the OAuth scopes requested for the service account.
// Reading free/busy and inserting events both need full calendar access.
var DefaultScopes = []string{
	calendar.CalendarScope,
}
