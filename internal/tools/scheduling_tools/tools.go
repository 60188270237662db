package scheduling_tools

import (
	"strings"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/slotbook/internal/server"
)

// Tool names.
const (
	ToolFindSlots = "scheduling_find_slots"
	ToolBookSlot  = "scheduling_book_slot"
)

// RegisterSchedulingTools registers the slot search and booking tools with
// the MCP server. With readOnly set, only the search tool is registered.
func RegisterSchedulingTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := registerFindSlotsTool(s, sc); err != nil {
		return err
	}
	if readOnly {
		return nil
	}
	return registerBookSlotTool(s, sc)
}

// stringArg returns the trimmed string argument, or "" when it is absent or
// not a string.
func stringArg(args map[string]interface{}, key string) string {
	v, ok := args[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
