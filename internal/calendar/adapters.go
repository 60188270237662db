package calendar

import (
	"context"
	"time"

	"github.com/teemow/slotbook/internal/scheduler"
)

var (
	_ scheduler.BusyIntervalSource = (*BusySource)(nil)
	_ scheduler.EventInserter      = (*EventSink)(nil)
)

// BusySource reads the busy intervals of one calendar.
type BusySource struct {
	Client     *Client
	CalendarID string

	// TimeZone is passed to freebusy. It does not change the instants
	// returned, only how Google renders them.
	TimeZone string
}

// BusyIntervals implements scheduler.BusyIntervalSource.
func (s *BusySource) BusyIntervals(ctx context.Context, start, end time.Time) ([]scheduler.BusyInterval, error) {
	return s.Client.QueryFreeBusy(ctx, s.CalendarID, start, end, s.TimeZone)
}

// EventSink writes booked meetings to one calendar.
type EventSink struct {
	Client     *Client
	CalendarID string
}

// InsertEvent implements scheduler.EventInserter. Guests are always notified.
func (s *EventSink) InsertEvent(ctx context.Context, req scheduler.EventRequest) (scheduler.MeetingRecord, error) {
	input := EventInput{
		Summary:             req.Summary,
		Description:         req.Description,
		Start:               req.Start,
		End:                 req.End,
		TimeZone:            req.TimeZone,
		ConferenceRequestID: req.ConferenceRequestID,
		SendUpdates:         SendUpdatesAll,
	}
	for _, a := range req.Attendees {
		input.Attendees = append(input.Attendees, AttendeeInfo{Email: a.Email, DisplayName: a.DisplayName})
	}

	created, err := s.Client.InsertEvent(ctx, s.CalendarID, input)
	if err != nil {
		return scheduler.MeetingRecord{}, err
	}
	return scheduler.MeetingRecord{
		EventID:        created.ID,
		ConferenceLink: created.MeetLink,
		HTMLLink:       created.HTMLLink,
	}, nil
}
