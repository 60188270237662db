package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/teemow/slotbook/internal/logging"
	"github.com/teemow/slotbook/internal/scheduler"
)

// isoMillis renders instants the way browsers serialise dates, which is what
// the booking page posts back.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Response messages of the public API.
const (
	msgInvalidDates    = "Invalid date parameters"
	msgMissingFields   = "Missing required fields"
	msgInvalidEmail    = "Invalid email address"
	msgInvalidStart    = "Invalid or past start time"
	msgInvalidEnd      = "Invalid end time"
	msgInvalidBody     = "Invalid request body"
	msgSlotTaken       = "Slot is no longer available"
	msgUpstreamTimeout = "Calendar service timed out"
	msgBookingFailed   = "Booking failed"
)

// maxBookBodyBytes bounds the JSON body of POST /book.
const maxBookBodyBytes = 16 << 10

// SlotJSON is one slot on the wire.
type SlotJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// NewSlotJSON renders s in UTC with millisecond precision.
func NewSlotJSON(s scheduler.Slot) SlotJSON {
	return SlotJSON{
		Start: s.Start.UTC().Format(isoMillis),
		End:   s.End.UTC().Format(isoMillis),
	}
}

type availabilityResponse struct {
	Slots []SlotJSON `json:"slots"`
}

type bookRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

type bookResponse struct {
	Success  bool    `json:"success"`
	EventID  string  `json:"eventId"`
	MeetLink *string `json:"meetLink"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// API serves the public scheduling endpoints.
type API struct {
	sc *ServerContext
}

// NewAPI returns the handlers for GET /availability and POST /book.
func NewAPI(sc *ServerContext) *API {
	return &API{sc: sc}
}

// Availability handles GET /availability?start=&end=. Missing bounds default
// to now and now plus the configured window.
func (a *API) Availability(w http.ResponseWriter, r *http.Request) {
	start, end := a.sc.DefaultRange()

	q := r.URL.Query()
	if raw := q.Get("start"); raw != "" {
		t, err := ParseTime(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, msgInvalidDates)
			return
		}
		start = t
	}
	if raw := q.Get("end"); raw != "" {
		t, err := ParseTime(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, msgInvalidDates)
			return
		}
		end = t
	}

	slots, err := a.sc.FindSlots(r.Context(), start, end)
	if err != nil {
		status := http.StatusInternalServerError
		msg := err.Error()
		if isTimeout(err) {
			status = http.StatusGatewayTimeout
			msg = msgUpstreamTimeout
		}
		a.sc.Logger().Error("availability query failed",
			logging.RequestID(RequestIDFromContext(r.Context())),
			logging.Err(err))
		writeError(w, status, msg)
		return
	}

	resp := availabilityResponse{Slots: make([]SlotJSON, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, NewSlotJSON(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Book handles POST /book.
func (a *API) Book(w http.ResponseWriter, r *http.Request) {
	var body bookRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBookBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	if strings.TrimSpace(body.Name) == "" || strings.TrimSpace(body.Email) == "" ||
		strings.TrimSpace(body.Company) == "" || body.Start == "" || body.End == "" {
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	if !scheduler.ValidEmail(body.Email) {
		writeError(w, http.StatusBadRequest, msgInvalidEmail)
		return
	}

	start, err := ParseTime(body.Start)
	if err != nil || !start.After(a.sc.Now()) {
		writeError(w, http.StatusBadRequest, msgInvalidStart)
		return
	}
	end, err := ParseTime(body.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidEnd)
		return
	}

	req := scheduler.BookingRequest{
		AttendeeName:    body.Name,
		AttendeeEmail:   body.Email,
		AttendeeCompany: body.Company,
		Slot:            scheduler.Slot{Start: start, End: end},
	}

	record, err := a.sc.Book(r.Context(), SourceHTTP, RequestIDFromContext(r.Context()), req)
	if err != nil {
		status, msg := bookingErrorResponse(err)
		writeError(w, status, msg)
		return
	}

	resp := bookResponse{Success: true, EventID: record.EventID}
	if record.ConferenceLink != "" {
		link := record.ConferenceLink
		resp.MeetLink = &link
	}
	writeJSON(w, http.StatusOK, resp)
}

// bookingErrorResponse maps a Commit error to a status and message.
func bookingErrorResponse(err error) (int, string) {
	switch scheduler.KindOf(err) {
	case scheduler.KindValidation:
		var valErr *scheduler.ValidationError
		if errors.As(err, &valErr) && valErr.Field == "email" {
			return http.StatusBadRequest, msgInvalidEmail
		}
		if errors.As(err, &valErr) && (valErr.Field == "name" || valErr.Field == "company") {
			return http.StatusBadRequest, msgMissingFields
		}
		return http.StatusBadRequest, err.Error()
	case scheduler.KindStaleSlot:
		if errors.Is(err, scheduler.ErrSlotConflict) {
			return http.StatusConflict, msgSlotTaken
		}
		return http.StatusBadRequest, msgInvalidStart
	case scheduler.KindUpstream:
		if isTimeout(err) {
			return http.StatusGatewayTimeout, msgUpstreamTimeout
		}
		return http.StatusInternalServerError, err.Error()
	default:
		if err.Error() == "" {
			return http.StatusInternalServerError, msgBookingFailed
		}
		return http.StatusInternalServerError, err.Error()
	}
}

// isTimeout reports a deadline hit anywhere in err, including a request
// context cancelled by the router timeout.
func isTimeout(err error) bool {
	return scheduler.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded)
}

// ParseTime accepts RFC 3339 timestamps, with or without fractional
// seconds, and bare YYYY-MM-DD dates, which are read as UTC midnight.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
