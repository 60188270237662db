package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/slotbook/internal/server"
)

// PolicyURI is the URI of the scheduling policy resource.
const PolicyURI = "slotbook://policy"

// PolicyDocument describes the rules every offered slot follows.
type PolicyDocument struct {
	Timezone               string   `json:"timezone"`
	WorkStartHour          int      `json:"workStartHour"`
	WorkEndHour            int      `json:"workEndHour"`
	SlotMinutes            int      `json:"slotMinutes"`
	MinLeadMinutes         int      `json:"minLeadMinutes"`
	ExcludedWeekdays       []string `json:"excludedWeekdays"`
	SlotsPerDay            int      `json:"slotsPerDay"`
	AvailabilityWindowDays int      `json:"availabilityWindowDays"`
}

// RegisterPolicyResources registers the read-only scheduling policy resource.
func RegisterPolicyResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	policyResource := mcp.NewResource(
		PolicyURI,
		"Scheduling Policy",
		mcp.WithResourceDescription("Working hours, slot length and lead time used to offer meeting slots"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(policyResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handlePolicy(ctx, request, sc)
	})

	return nil
}

// NewPolicyDocument snapshots the policy of sc.
func NewPolicyDocument(sc *server.ServerContext) PolicyDocument {
	p := sc.Policy()
	excluded := make([]string, 0, 2)
	for _, wd := range p.ExcludedWeekdays() {
		excluded = append(excluded, wd.String())
	}
	return PolicyDocument{
		Timezone:               p.Timezone(),
		WorkStartHour:          p.WorkStartHour(),
		WorkEndHour:            p.WorkEndHour(),
		SlotMinutes:            int(p.SlotDuration().Minutes()),
		MinLeadMinutes:         int(p.MinLead().Minutes()),
		ExcludedWeekdays:       excluded,
		SlotsPerDay:            p.SlotsPerDay(),
		AvailabilityWindowDays: sc.Config().AvailabilityWindowDays,
	}
}

func handlePolicy(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(NewPolicyDocument(sc), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal policy: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
