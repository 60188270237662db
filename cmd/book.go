package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/slotbook/internal/logging"
	"github.com/teemow/slotbook/internal/scheduler"
	"github.com/teemow/slotbook/internal/server"
)

func newBookCmd() *cobra.Command {
	var (
		common  commonFlags
		name    string
		email   string
		company string
		startS  string
		endS    string
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book one meeting slot",
		Long: `Book the slot starting at --start as a calendar event with a Google Meet
link. The attendee and, if configured, the calendar owner are invited.

--end defaults to --start plus the configured meeting duration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &common)
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, &common)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			sc, err := newServerContext(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer func() { _ = sc.Shutdown() }()
			sc.SetAuditLogger(newAuditLogger(logger))

			req, err := bookingRequest(sc, name, email, company, startS, endS)
			if err != nil {
				return err
			}
			return runBook(ctx, cmd.OutOrStdout(), sc, req, asJSON)
		},
	}

	addCommonFlags(cmd, &common, logging.FormatText)
	cmd.Flags().StringVar(&name, "name", "", "Attendee's full name")
	cmd.Flags().StringVar(&email, "email", "", "Attendee's email address")
	cmd.Flags().StringVar(&company, "company", "", "Attendee's company")
	cmd.Flags().StringVar(&startS, "start", "", "Slot start (RFC3339)")
	cmd.Flags().StringVar(&endS, "end", "", "Slot end (RFC3339). Default: start plus the meeting duration")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON, in the same shape as POST /book")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	for _, f := range []string{"name", "email", "company", "start"} {
		_ = cmd.MarkFlagRequired(f)
	}

	return cmd
}

// bookingRequest parses the command line into a booking request.
func bookingRequest(sc *server.ServerContext, name, email, company, startS, endS string) (scheduler.BookingRequest, error) {
	start, err := server.ParseTime(startS)
	if err != nil {
		return scheduler.BookingRequest{}, fmt.Errorf("invalid --start: %w", err)
	}
	end := start.Add(sc.Policy().SlotDuration())
	if endS != "" {
		if end, err = server.ParseTime(endS); err != nil {
			return scheduler.BookingRequest{}, fmt.Errorf("invalid --end: %w", err)
		}
	}
	return scheduler.BookingRequest{
		AttendeeName:    name,
		AttendeeEmail:   email,
		AttendeeCompany: company,
		Slot:            scheduler.Slot{Start: start, End: end},
	}, nil
}

func runBook(ctx context.Context, w io.Writer, sc *server.ServerContext, req scheduler.BookingRequest, asJSON bool) error {
	record, err := sc.Book(ctx, server.SourceCLI, "", req)
	if err != nil {
		return fmt.Errorf("booking failed: %w", err)
	}

	if asJSON {
		out := struct {
			Success  bool    `json:"success"`
			EventID  string  `json:"eventId"`
			MeetLink *string `json:"meetLink"`
		}{Success: true, EventID: record.EventID}
		if record.ConferenceLink != "" {
			out.MeetLink = &record.ConferenceLink
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	loc := sc.Policy().Location()
	fmt.Fprintf(w, "Booked %s-%s %s\n",
		req.Slot.Start.In(loc).Format("Mon 2006-01-02 15:04"),
		req.Slot.End.In(loc).Format("15:04"),
		sc.Policy().Timezone())
	fmt.Fprintf(w, "Event ID:  %s\n", record.EventID)
	if record.ConferenceLink != "" {
		fmt.Fprintf(w, "Meet link: %s\n", record.ConferenceLink)
	} else {
		fmt.Fprintln(w, "Meet link: none attached")
	}
	if record.HTMLLink != "" {
		fmt.Fprintf(w, "Calendar:  %s\n", record.HTMLLink)
	}
	return nil
}
