package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/slotbook/internal/config"
	"github.com/teemow/slotbook/internal/logging"
	"github.com/teemow/slotbook/internal/resources"
	"github.com/teemow/slotbook/internal/server"
	"github.com/teemow/slotbook/internal/tools/scheduling_tools"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

func newMCPCmd() *cobra.Command {
	var (
		common           commonFlags
		transport        string
		httpAddr         string
		readOnly         bool
		disableStreaming bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server so AI assistants can find
and book meeting slots.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport at /mcp, next to the HTTP API

Tools:
  - scheduling_find_slots
  - scheduling_book_slot (not registered with --read-only)

Resources:
  - slotbook://policy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &common)
			if err != nil {
				return err
			}

			// Stdout carries the protocol for stdio, so logs go to stderr.
			logger := newLogger(os.Stderr, &common)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			switch transport {
			case transportStdio:
				return runStdio(ctx, cfg, logger, readOnly)
			case transportStreamableHTTP:
				if cmd.Flags().Changed("http-addr") {
					cfg.HTTPAddr = httpAddr
				}
				return runHTTP(ctx, cfg, logger, httpOptions{
					addr:             cfg.HTTPAddr,
					corsOrigins:      parseCommaSeparatedList(cfg.CORSAllowedOrigin),
					metrics:          MetricsConfig{Enabled: cfg.MetricsEnabled, Addr: cfg.MetricsAddr},
					enableMCP:        true,
					readOnly:         readOnly,
					disableStreaming: disableStreaming,
				})
			default:
				return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", transport, transportStdio, transportStreamableHTTP)
			}
		},
	}

	addCommonFlags(cmd, &common, logging.FormatText)
	cmd.Flags().StringVar(&transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", config.DefaultHTTPAddr, "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Only register read-only tools (no booking)")
	cmd.Flags().BoolVar(&disableStreaming, "disable-streaming", false, "Disable streaming for HTTP transport (for compatibility with certain clients)")

	return cmd
}

func runStdio(ctx context.Context, cfg config.Config, logger *slog.Logger, readOnly bool) error {
	// Metrics are not scraped from a stdio child process; audit records
	// still go to stderr.
	sc, err := newServerContext(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() { _ = sc.Shutdown() }()
	sc.SetAuditLogger(newAuditLogger(logger))

	mcpSrv, err := newMCPServer(sc, readOnly)
	if err != nil {
		return err
	}
	return runStdioServer(mcpSrv)
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// newMCPServer creates the MCP server with every tool registered.
func newMCPServer(sc *server.ServerContext, readOnly bool) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("slotbook", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)
	if err := registerAllTools(mcpSrv, sc, readOnly); err != nil {
		return nil, err
	}
	return mcpSrv, nil
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := scheduling_tools.RegisterSchedulingTools(mcpSrv, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register Scheduling tools: %w", err)
	}
	if err := resources.RegisterPolicyResources(mcpSrv, sc); err != nil {
		return fmt.Errorf("failed to register policy resources: %w", err)
	}
	return nil
}
