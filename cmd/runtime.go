package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/teemow/slotbook/internal/calendar"
	"github.com/teemow/slotbook/internal/config"
	"github.com/teemow/slotbook/internal/google"
	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/logging"
	"github.com/teemow/slotbook/internal/scheduler"
	"github.com/teemow/slotbook/internal/server"
)

// commonFlags are shared by every command that talks to the calendar.
type commonFlags struct {
	debug      bool
	logFormat  string
	calendarID string
	timezone   string
}

func addCommonFlags(cmd *cobra.Command, f *commonFlags, defaultLogFormat string) {
	cmd.Flags().BoolVar(&f.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&f.logFormat, "log-format", defaultLogFormat, "Log format: text or json")
	cmd.Flags().StringVar(&f.calendarID, "calendar-id", "", "Calendar to read busy time from and book into. Overrides GOOGLE_CALENDAR_ID.")
	cmd.Flags().StringVar(&f.timezone, "timezone", "", "IANA timezone of the working hours. Overrides TIMEZONE.")
}

// loadConfig reads the environment configuration and applies flag overrides.
// Flags only apply when explicitly set.
func loadConfig(cmd *cobra.Command, f *commonFlags) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cmd.Flags().Changed("calendar-id") {
		cfg.CalendarID = f.calendarID
	}
	if cmd.Flags().Changed("timezone") {
		cfg.Policy.Timezone = f.timezone
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(w io.Writer, f *commonFlags) *slog.Logger {
	logger := logging.NewLogger(w, f.logFormat, f.debug)
	slog.SetDefault(logger)
	return logger
}

// newServerContext wires the Google Calendar adapters into the scheduling
// services. metrics may be nil.
func newServerContext(ctx context.Context, cfg config.Config, logger *slog.Logger, metrics *instrumentation.Metrics) (*server.ServerContext, error) {
	if !cfg.Credentials.Configured() {
		return nil, google.ErrNoCredentials
	}

	policy, err := cfg.NewPolicy()
	if err != nil {
		return nil, err
	}

	client, err := calendar.NewServiceAccountClient(ctx, cfg.Credentials,
		calendar.WithMetrics(metrics),
		calendar.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}

	source := &calendar.BusySource{Client: client, CalendarID: cfg.CalendarID, TimeZone: policy.Timezone()}
	sink := &calendar.EventSink{Client: client, CalendarID: cfg.CalendarID}

	opts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithFetchTimeout(cfg.FetchTimeout),
		scheduler.WithOwner(cfg.Owner),
	}
	if metrics != nil {
		opts = append(opts, scheduler.WithObserver(metrics))
	}
	if cfg.RecheckOverlap {
		opts = append(opts, scheduler.WithOverlapRecheck(source))
	}

	// The services outlive the signal context so in-flight requests can
	// drain during a graceful shutdown.
	sc, err := server.NewServerContext(context.WithoutCancel(ctx), cfg,
		scheduler.NewAvailability(policy, source, opts...),
		scheduler.NewCommitter(policy, sink, opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	sc.SetLogger(logger)
	sc.SetMetrics(metrics)

	logger.Debug("scheduler configured",
		logging.Calendar(cfg.CalendarID),
		slog.String("policy", policy.String()),
		slog.Bool("recheck_overlap", cfg.RecheckOverlap),
	)
	return sc, nil
}

// newAuditLogger returns the booking audit logger for commands that run
// without an instrumentation provider.
func newAuditLogger(logger *slog.Logger) *instrumentation.AuditLogger {
	return instrumentation.NewAuditLoggerWithConfig(logger, instrumentation.DefaultConfig().AuditLogging)
}

// newBookLimiter picks the POST /book rate limiter: Redis when REDIS_ADDR is
// set, otherwise in-process. The returned cleanup must be called on exit.
func newBookLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger) (server.Limiter, func()) {
	if cfg.RateLimitBookPerMinute <= 0 {
		logger.Info("rate limiting disabled for /book")
		return nil, func() {}
	}

	if cfg.RedisAddr != "" {
		redis.SetLogger(logging.NewRedisAdapter(logger))
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			// The limiter fails open, so an unreachable Redis is not fatal.
			logger.Warn("redis not reachable, rate limiter will allow requests until it is",
				slog.String("addr", cfg.RedisAddr), logging.Err(err))
		}

		logger.Info("using redis rate limiter for /book",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("per_minute", cfg.RateLimitBookPerMinute))
		limiter := server.NewRedisRateLimiter(rdb, cfg.RateLimitBookPerMinute, time.Minute, cfg.RateLimitPrefix)
		return limiter, func() { _ = rdb.Close() }
	}

	logger.Info("using in-process rate limiter for /book", slog.Int("per_minute", cfg.RateLimitBookPerMinute))
	limiter := server.NewLocalRateLimiter(cfg.RateLimitBookPerMinute)
	return limiter, limiter.Stop
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
