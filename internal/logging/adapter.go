package logging

import (
	"context"
	"fmt"
	"log/slog"
)

// RedisAdapter routes the go-redis client's internal log lines to slog.
// It satisfies the Printf interface expected by redis.SetLogger.
type RedisAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewRedisAdapter creates a RedisAdapter writing at warn level.
// If logger is nil, slog.Default() is used.
func NewRedisAdapter(logger *slog.Logger) *RedisAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisAdapter{logger: logger.With(slog.String("component", "redis")), level: slog.LevelWarn}
}

// Printf formats a client message and logs it.
func (a *RedisAdapter) Printf(ctx context.Context, format string, v ...any) {
	if ctx == nil {
		ctx = context.Background()
	}
	a.logger.Log(ctx, a.level, fmt.Sprintf(format, v...))
}

// Logger returns the underlying slog.Logger for direct access when needed.
func (a *RedisAdapter) Logger() *slog.Logger {
	return a.logger
}
