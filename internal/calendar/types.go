package calendar

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

// Values for the sendUpdates parameter of an insert.
const (
	SendUpdatesAll      = "all"
	SendUpdatesExternal = "externalOnly"
	SendUpdatesNone     = "none"
)

// conferenceSolutionMeet requests a Google Meet link.
const conferenceSolutionMeet = "hangoutsMeet"

// EventInput represents the input for creating a calendar event
type EventInput struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Attendees   []AttendeeInfo

	// ConferenceRequestID requests a Meet link when set. Google deduplicates
	// conference creation on it.
	ConferenceRequestID string

	// SendUpdates controls guest notifications (default: all).
	SendUpdates string
}

// AttendeeInfo represents information about an event attendee
type AttendeeInfo struct {
	Email       string
	DisplayName string
}

// CreatedEvent is the part of an inserted event slotbook reports back.
type CreatedEvent struct {
	ID       string
	HTMLLink string
	MeetLink string
	Status   string
	Start    time.Time
	End      time.Time
}

// toCalendarEvent builds the API event for input.
func toCalendarEvent(input EventInput) *calendar.Event {
	tz := input.TimeZone
	if tz == "" {
		tz = "UTC"
	}

	event := &calendar.Event{
		Summary:     input.Summary,
		Description: input.Description,
		Start: &calendar.EventDateTime{
			DateTime: input.Start.Format(time.RFC3339),
			TimeZone: tz,
		},
		End: &calendar.EventDateTime{
			DateTime: input.End.Format(time.RFC3339),
			TimeZone: tz,
		},
	}

	for _, a := range input.Attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{
			Email:       a.Email,
			DisplayName: a.DisplayName,
		})
	}

	if input.ConferenceRequestID != "" {
		event.ConferenceData = &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId: input.ConferenceRequestID,
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{
					Type: conferenceSolutionMeet,
				},
			},
		}
	}

	return event
}

// toCreatedEvent converts an inserted Google Calendar event to a CreatedEvent
func toCreatedEvent(event *calendar.Event) CreatedEvent {
	if event == nil {
		return CreatedEvent{}
	}

	created := CreatedEvent{
		ID:       event.Id,
		HTMLLink: event.HtmlLink,
		Status:   event.Status,
		MeetLink: meetLink(event),
	}
	if event.Start != nil {
		created.Start, _ = time.Parse(time.RFC3339, event.Start.DateTime)
	}
	if event.End != nil {
		created.End, _ = time.Parse(time.RFC3339, event.End.DateTime)
	}
	return created
}

// meetLink returns the URI of the video entry point, or "".
func meetLink(event *calendar.Event) string {
	if event.ConferenceData == nil {
		return ""
	}
	for _, ep := range event.ConferenceData.EntryPoints {
		if ep.EntryPointType == "video" {
			return ep.Uri
		}
	}
	return ""
}
