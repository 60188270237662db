package scheduling_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/slotbook/internal/scheduler"
	"github.com/teemow/slotbook/internal/server"
	"github.com/teemow/slotbook/internal/tools/common"
)

const (
	formatText = "text"
	formatJSON = "json"
)

func registerFindSlotsTool(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	tool := mcp.NewTool(ToolFindSlots,
		mcp.WithDescription("Find open meeting slots in the owner's calendar. Slots respect working hours, the minimum lead time and excluded weekdays."),
		mcp.WithString("start",
			mcp.Description("Start of the search range (RFC3339, e.g. '2025-06-02T00:00:00Z', or YYYY-MM-DD). Default: now"),
		),
		mcp.WithString("end",
			mcp.Description("End of the search range (RFC3339 or YYYY-MM-DD). Default: the configured availability window after start"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'text' (grouped by day, default) or 'json'"),
			mcp.Enum(formatText, formatJSON),
		),
	)

	s.AddTool(tool, common.InstrumentedToolHandler(ToolFindSlots, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleFindSlots(ctx, request, sc)
	}))
	return nil
}

func handleFindSlots(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	start, end := sc.DefaultRange()

	if v := stringArg(args, "start"); v != "" {
		t, err := server.ParseTime(v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid start: %v", err)), nil
		}
		start = t
		if stringArg(args, "end") == "" {
			end = start.Add(time.Duration(sc.Config().AvailabilityWindowDays) * 24 * time.Hour)
		}
	}
	if v := stringArg(args, "end"); v != "" {
		t, err := server.ParseTime(v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid end: %v", err)), nil
		}
		end = t
	}

	format := stringArg(args, "format")
	if format == "" {
		format = formatText
	}
	if format != formatText && format != formatJSON {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid format %q (expected text or json)", format)), nil
	}

	slots, err := sc.FindSlots(ctx, start, end)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to find slots: %v", err)), nil
	}

	if format == formatJSON {
		out := make([]server.SlotJSON, 0, len(slots))
		for _, slot := range slots {
			out = append(out, server.NewSlotJSON(slot))
		}
		data, err := json.Marshal(out)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to encode slots: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}

	return mcp.NewToolResultText(formatSlots(slots, sc.Policy(), start, end)), nil
}

// formatSlots renders slots grouped by local day in the policy timezone.
func formatSlots(slots []scheduler.Slot, policy *scheduler.Policy, start, end time.Time) string {
	loc := policy.Location()
	var b strings.Builder

	if len(slots) == 0 {
		fmt.Fprintf(&b, "No open slots between %s and %s (%s).\n",
			start.In(loc).Format(time.DateTime), end.In(loc).Format(time.DateTime), policy.Timezone())
		return b.String()
	}

	fmt.Fprintf(&b, "Found %d open slot(s) between %s and %s (%s):\n",
		len(slots), start.In(loc).Format(time.DateTime), end.In(loc).Format(time.DateTime), policy.Timezone())

	for _, day := range scheduler.GroupByDay(slots, loc) {
		fmt.Fprintf(&b, "\n%s %s\n", day.Date.Weekday().String()[:3], day.Date)
		for _, slot := range day.Slots {
			fmt.Fprintf(&b, "  %s-%s  start=%s\n",
				slot.Start.In(loc).Format("15:04"),
				slot.End.In(loc).Format("15:04"),
				server.NewSlotJSON(slot).Start)
		}
	}
	return b.String()
}
