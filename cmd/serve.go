package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/slotbook/internal/config"
	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/logging"
	"github.com/teemow/slotbook/internal/server"
)

// shutdownTimeout bounds the graceful drain of the HTTP and metrics servers.
const shutdownTimeout = 30 * time.Second

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// httpOptions configures runHTTP.
type httpOptions struct {
	addr        string
	corsOrigins []string
	metrics     MetricsConfig

	// enableMCP mounts the streamable HTTP MCP transport at /mcp.
	enableMCP        bool
	readOnly         bool
	disableStreaming bool
}

func newServeCmd() *cobra.Command {
	var (
		common         commonFlags
		httpAddr       string
		corsOrigins    string
		enableMCP      bool
		readOnly       bool
		trustProxy     bool
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling HTTP API",
		Long: `Start the HTTP API used by the booking page:

  GET  /availability?start=...&end=...   open slots, default now to now+30 days
  POST /book                             book one slot with a Meet link
  GET  /healthz, /readyz                 health probes

Prometheus metrics are served on a dedicated port (--metrics-addr).
Use --enable-mcp to also mount the MCP streamable HTTP transport at /mcp.

Configuration is read from the environment and from .env.local / .env files.
Flags override the environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &common)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("cors-origin") {
				cfg.CORSAllowedOrigin = corsOrigins
			}
			if cmd.Flags().Changed("trust-proxy") {
				cfg.TrustProxy = trustProxy
			}
			if cmd.Flags().Changed("metrics-enabled") {
				cfg.MetricsEnabled = metricsEnabled
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}

			logger := newLogger(os.Stderr, &common)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runHTTP(ctx, cfg, logger, httpOptions{
				addr:        cfg.HTTPAddr,
				corsOrigins: parseCommaSeparatedList(cfg.CORSAllowedOrigin),
				metrics:     MetricsConfig{Enabled: cfg.MetricsEnabled, Addr: cfg.MetricsAddr},
				enableMCP:   enableMCP,
				readOnly:    readOnly,
			})
		},
	}

	addCommonFlags(cmd, &common, logging.FormatJSON)
	cmd.Flags().StringVar(&httpAddr, "http-addr", config.DefaultHTTPAddr, "HTTP server address. Can also use HTTP_ADDR env var.")
	cmd.Flags().StringVar(&corsOrigins, "cors-origin", "", "Comma-separated origins allowed to call the API. Can also use CORS_ALLOWED_ORIGIN env var.")
	cmd.Flags().BoolVar(&trustProxy, "trust-proxy", false, "Key the rate limiter on X-Forwarded-For. Only enable behind a proxy that sets it. Can also use TRUST_PROXY env var.")
	cmd.Flags().BoolVar(&enableMCP, "enable-mcp", false, "Also serve the MCP streamable HTTP transport at /mcp")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Only register read-only MCP tools (no booking)")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", config.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// runHTTP serves the API until ctx is cancelled, then shuts everything down
// gracefully.
func runHTTP(ctx context.Context, cfg config.Config, logger *slog.Logger, opts httpOptions) (err error) {
	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if shutdownErr := provider.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(shutdownErr))
		}
	}()

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if opts.metrics.Enabled && provider.Enabled() && provider.PrometheusHandler() != nil {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Use ready channel to confirm metrics server started successfully
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		// Wait for metrics server to be ready or fail
		select {
		case <-metricsReady:
			logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}
	}

	sc, err := newServerContext(ctx, cfg, logger, provider.Metrics())
	if err != nil {
		return err
	}
	sc.SetAuditLogger(provider.AuditLogger(logger))

	limiter, stopLimiter := newBookLimiter(ctx, cfg, logger)
	defer stopLimiter()

	var mcpHandler http.Handler
	if opts.enableMCP {
		mcpSrv, err := newMCPServer(sc, opts.readOnly)
		if err != nil {
			return err
		}
		mcpHandler = mcpserver.NewStreamableHTTPServer(mcpSrv,
			mcpserver.WithEndpointPath("/mcp"),
			mcpserver.WithDisableStreaming(opts.disableStreaming),
		)
	}

	httpServer, err := server.NewHTTPServer(sc, server.HTTPServerConfig{
		CORSAllowedOrigins: opts.corsOrigins,
		BookLimiter:        limiter,
		TrustProxy:         cfg.TrustProxy,
		MCPHandler:         mcpHandler,
	})
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			slog.String("addr", opts.addr),
			slog.Bool("mcp", opts.enableMCP),
			slog.String("version", version))
		if err := httpServer.Start(opts.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			_ = sc.Shutdown()
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	if err := sc.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("server context shutdown: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
