// Package calendar provides a client for the two Google Calendar calls slotbook
// needs: a free/busy query for the owner's calendar and an event insert that
// attaches a Google Meet link.
//
// BusySource and EventSink bind a Client to one calendar id and satisfy the
// scheduler's collaborator interfaces. Every call is traced and recorded in
// the google_api_* metrics.
//
// Example usage:
//
//	client, err := calendar.NewServiceAccountClient(ctx, creds,
//	    calendar.WithMetrics(provider.Metrics()))
//	if err != nil {
//	    return err
//	}
//	source := &calendar.BusySource{Client: client, CalendarID: "primary", TimeZone: "Europe/Berlin"}
//	availability := scheduler.NewAvailability(policy, source)
package calendar
