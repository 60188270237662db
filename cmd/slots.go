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

func newSlotsCmd() *cobra.Command {
	var (
		common  commonFlags
		startS  string
		endS    string
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List open meeting slots",
		Long: `List the open slots between --start and --end, grouped by day in the
configured timezone. Both accept RFC3339 timestamps or YYYY-MM-DD dates (UTC
midnight). The range defaults to now through the availability window.`,
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

			start, end, err := parseRange(sc, startS, endS)
			if err != nil {
				return err
			}
			return runSlots(ctx, cmd.OutOrStdout(), sc, start, end, asJSON)
		},
	}

	addCommonFlags(cmd, &common, logging.FormatText)
	cmd.Flags().StringVar(&startS, "start", "", "Start of the range (RFC3339 or YYYY-MM-DD). Default: now")
	cmd.Flags().StringVar(&endS, "end", "", "End of the range (RFC3339 or YYYY-MM-DD). Default: start plus the availability window")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the slots as JSON, in the same shape as GET /availability")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")

	return cmd
}

// parseRange applies the default range to unset bounds.
func parseRange(sc *server.ServerContext, startS, endS string) (time.Time, time.Time, error) {
	start, end := sc.DefaultRange()
	if startS != "" {
		t, err := server.ParseTime(startS)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
		}
		start = t
		end = start.Add(sc.Config().AvailabilityWindow())
	}
	if endS != "" {
		t, err := server.ParseTime(endS)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
		}
		end = t
	}
	return start, end, nil
}

func runSlots(ctx context.Context, w io.Writer, sc *server.ServerContext, start, end time.Time, asJSON bool) error {
	slots, err := sc.FindSlots(ctx, start, end)
	if err != nil {
		return err
	}

	if asJSON {
		out := struct {
			Slots []server.SlotJSON `json:"slots"`
		}{Slots: make([]server.SlotJSON, 0, len(slots))}
		for _, s := range slots {
			out.Slots = append(out.Slots, server.NewSlotJSON(s))
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	printSlots(w, slots, sc.Policy())
	return nil
}

// printSlots writes one line per day with the local start times of its slots.
func printSlots(w io.Writer, slots []scheduler.Slot, policy *scheduler.Policy) {
	if len(slots) == 0 {
		fmt.Fprintln(w, "No open slots.")
		return
	}

	loc := policy.Location()
	fmt.Fprintf(w, "%d open slot(s), %s, %s each:\n", len(slots), policy.Timezone(), policy.SlotDuration())
	for _, day := range scheduler.GroupByDay(slots, loc) {
		fmt.Fprintf(w, "%s %s:", day.Date.Weekday().String()[:3], day.Date)
		for _, s := range day.Slots {
			fmt.Fprintf(w, " %s", s.Start.In(loc).Format("15:04"))
		}
		fmt.Fprintln(w)
	}
}

