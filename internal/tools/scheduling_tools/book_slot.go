package scheduling_tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/slotbook/internal/scheduler"
	"github.com/teemow/slotbook/internal/server"
	"github.com/teemow/slotbook/internal/tools/common"
)

func registerBookSlotTool(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	tool := mcp.NewTool(ToolBookSlot,
		mcp.WithDescription("Book one open slot as a calendar event with a video conference link. The attendee and the calendar owner are invited."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Attendee's full name"),
		),
		mcp.WithString("email",
			mcp.Required(),
			mcp.Description("Attendee's email address"),
		),
		mcp.WithString("company",
			mcp.Required(),
			mcp.Description("Attendee's company"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Slot start as returned by scheduling_find_slots (RFC3339)"),
		),
		mcp.WithString("end",
			mcp.Description("Slot end (RFC3339). Default: start plus the configured slot duration"),
		),
	)

	s.AddTool(tool, common.InstrumentedToolHandler(ToolBookSlot, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleBookSlot(ctx, request, sc)
	}))
	return nil
}

func handleBookSlot(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	name := stringArg(args, "name")
	email := stringArg(args, "email")
	company := stringArg(args, "company")
	startStr := stringArg(args, "start")
	if name == "" || email == "" || company == "" || startStr == "" {
		return mcp.NewToolResultError("name, email, company and start are required"), nil
	}

	start, err := server.ParseTime(startStr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid start: %v", err)), nil
	}
	end := start.Add(sc.Policy().SlotDuration())
	if v := stringArg(args, "end"); v != "" {
		end, err = server.ParseTime(v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid end: %v", err)), nil
		}
	}

	req := scheduler.BookingRequest{
		AttendeeName:    name,
		AttendeeEmail:   email,
		AttendeeCompany: company,
		Slot:            scheduler.Slot{Start: start, End: end},
	}

	record, err := sc.Book(ctx, server.SourceMCP, uuid.NewString(), req)
	if err != nil {
		return mcp.NewToolResultError(bookingErrorMessage(err)), nil
	}

	loc := sc.Policy().Location()
	result := fmt.Sprintf("Booked %s-%s %s (%s)\nEvent ID: %s\n",
		start.In(loc).Format("Mon 2006-01-02 15:04"),
		end.In(loc).Format("15:04"),
		sc.Policy().Timezone(),
		server.NewSlotJSON(req.Slot).Start,
		record.EventID)
	if record.ConferenceLink != "" {
		result += fmt.Sprintf("Meet link: %s\n", record.ConferenceLink)
	} else {
		result += "No video link was attached.\n"
	}
	if record.HTMLLink != "" {
		result += fmt.Sprintf("Calendar link: %s\n", record.HTMLLink)
	}

	return mcp.NewToolResultText(result), nil
}

// bookingErrorMessage turns a booking failure into a message an assistant
// can act on.
func bookingErrorMessage(err error) string {
	switch scheduler.KindOf(err) {
	case scheduler.KindValidation:
		return fmt.Sprintf("Invalid booking request: %v", err)
	case scheduler.KindStaleSlot:
		if errors.Is(err, scheduler.ErrSlotConflict) {
			return "Slot is no longer available. Call scheduling_find_slots for current availability."
		}
		return "Slot start is in the past. Call scheduling_find_slots for current availability."
	case scheduler.KindUpstream:
		if scheduler.IsTimeout(err) {
			return "Calendar service timed out. Try again."
		}
		return fmt.Sprintf("Failed to book slot: %v", err)
	default:
		return fmt.Sprintf("Failed to book slot: %v", err)
	}
}
