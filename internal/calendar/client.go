package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/slotbook/internal/google"
	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/logging"
	"github.com/teemow/slotbook/internal/scheduler"
)

// Client wraps the Google Calendar service
type Client struct {
	svc     *calendar.Service
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

type clientOptions struct {
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	apiOptions []option.ClientOption
}

// Option configures a Client.
type Option func(*clientOptions)

// WithMetrics records every Calendar call on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// WithLogger sets the logger used for dropped busy intervals and failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithAPIOptions passes extra options to the Calendar service, such as
// option.WithEndpoint.
func WithAPIOptions(opts ...option.ClientOption) Option {
	return func(o *clientOptions) { o.apiOptions = append(o.apiOptions, opts...) }
}

// NewClient creates a Calendar client that sends requests through httpClient.
// The caller is responsible for authentication.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...Option) (*Client, error) {
	o := clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	apiOpts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, o.apiOptions...)
	svc, err := calendar.NewService(ctx, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	return &Client{
		svc:     svc,
		metrics: o.metrics,
		logger:  o.logger,
	}, nil
}

// NewServiceAccountClient creates a Calendar client authenticated as the
// service account in creds.
func NewServiceAccountClient(ctx context.Context, creds google.Credentials, opts ...Option) (*Client, error) {
	httpClient, err := creds.HTTPClient(ctx, google.DefaultScopes...)
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, httpClient, opts...)
}

// QueryFreeBusy returns the busy intervals of calendarID between timeMin and
// timeMax. Intervals with a missing or unparseable bound are dropped. Errors
// Google reports for the calendar itself, such as notFound, fail the query.
func (c *Client) QueryFreeBusy(ctx context.Context, calendarID string, timeMin, timeMax time.Time, timezone string) ([]scheduler.BusyInterval, error) {
	ctx, span := instrumentation.StartCalendarSpan(ctx, instrumentation.OperationFreeBusy, calendarID)
	defer span.End()
	started := time.Now()

	query := &calendar.FreeBusyRequest{
		TimeMin:  timeMin.UTC().Format(time.RFC3339),
		TimeMax:  timeMax.UTC().Format(time.RFC3339),
		TimeZone: timezone,
		Items:    []*calendar.FreeBusyRequestItem{{Id: calendarID}},
	}

	result, err := c.svc.Freebusy.Query(query).Context(ctx).Do()
	if err == nil {
		err = calendarErrors(result, calendarID)
	}
	c.record(ctx, instrumentation.OperationFreeBusy, calendarID, started, err)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to query freebusy: %w", err)
	}

	busy := make([]scheduler.BusyInterval, 0)
	cal, ok := result.Calendars[calendarID]
	if !ok {
		instrumentation.SetSpanSuccess(span)
		return busy, nil
	}

	dropped := 0
	for _, period := range cal.Busy {
		start, errStart := time.Parse(time.RFC3339, period.Start)
		end, errEnd := time.Parse(time.RFC3339, period.End)
		if period.Start == "" || period.End == "" || errStart != nil || errEnd != nil {
			dropped++
			continue
		}
		busy = append(busy, scheduler.BusyInterval{Start: start, End: end})
	}
	if dropped > 0 {
		c.logger.Debug("dropped busy intervals with malformed bounds",
			logging.Calendar(calendarID), slog.Int("dropped", dropped))
	}

	instrumentation.SetSpanSuccess(span)
	return busy, nil
}

// calendarErrors turns per-calendar errors in a freebusy response into an error.
func calendarErrors(result *calendar.FreeBusyResponse, calendarID string) error {
	cal, ok := result.Calendars[calendarID]
	if !ok || len(cal.Errors) == 0 {
		return nil
	}
	reasons := make([]string, 0, len(cal.Errors))
	for _, e := range cal.Errors {
		reasons = append(reasons, e.Reason)
	}
	return fmt.Errorf("calendar %q: %s", calendarID, strings.Join(reasons, ", "))
}

// InsertEvent creates one event on calendarID. When the input carries a
// conference request id, a Google Meet link is requested with it. The call
// is made exactly once.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, input EventInput) (*CreatedEvent, error) {
	ctx, span := instrumentation.StartCalendarSpan(ctx, instrumentation.OperationInsert, calendarID)
	defer span.End()
	started := time.Now()

	sendUpdates := input.SendUpdates
	if sendUpdates == "" {
		sendUpdates = SendUpdatesAll
	}

	call := c.svc.Events.Insert(calendarID, toCalendarEvent(input)).
		SendUpdates(sendUpdates).
		Context(ctx)
	if input.ConferenceRequestID != "" {
		call = call.ConferenceDataVersion(1)
	}

	created, err := call.Do()
	c.record(ctx, instrumentation.OperationInsert, calendarID, started, err)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	event := toCreatedEvent(created)
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithEventID(event.ID).Build()...)
	instrumentation.SetSpanSuccess(span)
	return &event, nil
}

func (c *Client) record(ctx context.Context, operation, calendarID string, started time.Time, err error) {
	status := instrumentation.StatusSuccess
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		status = instrumentation.StatusTimeout
	default:
		status = instrumentation.StatusError
	}
	c.metrics.RecordGoogleAPIOperation(ctx, operation, status, calendarID, time.Since(started))

	if err != nil {
		c.logger.Warn("calendar call failed",
			logging.Operation(operation), logging.Calendar(calendarID), logging.Status(status), logging.Err(err))
	}
}
