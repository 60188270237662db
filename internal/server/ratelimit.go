package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/teemow/slotbook/internal/logging"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalRateLimiter implements a token bucket rate limiter per client key.
// Buckets live in process memory, so each replica enforces its own budget.
type LocalRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*bucket
	limit    rate.Limit
	burst    int
	idle     time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalRateLimiter allows perMinute requests per key per minute, all of
// which may arrive at once. Buckets idle for more than ten minutes are
// dropped by a background sweep; call Stop to end it.
func NewLocalRateLimiter(perMinute int) *LocalRateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	rl := &LocalRateLimiter{
		limiters: make(map[string]*bucket),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		idle:     10 * time.Minute,
		stop:     make(chan struct{}),
	}

	go rl.cleanupInactiveLimiters(5 * time.Minute)

	return rl
}

// Allow checks if a request from the given key should be allowed
func (rl *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	b, ok := rl.limiters[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = b
	}
	b.lastSeen = time.Now()
	rl.mu.Unlock()

	return b.limiter.Allow(), nil
}

// Stop ends the background sweep.
func (rl *LocalRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// cleanupInactiveLimiters removes limiters that haven't been used recently
func (rl *LocalRateLimiter) cleanupInactiveLimiters(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep(time.Now())
		}
	}
}

func (rl *LocalRateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.limiters {
		if now.Sub(b.lastSeen) > rl.idle {
			delete(rl.limiters, key)
		}
	}
}

// windowCounter increments the counter for key in the current window and
// returns the new count.
type windowCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisRateLimiter is a fixed-window rate limiter backed by Redis, shared by
// every replica that points at the same server and prefix.
type RedisRateLimiter struct {
	counter windowCounter
	limit   int
	window  time.Duration
	prefix  string
}

var redisFixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// NewRedisRateLimiter allows limit requests per key per window.
func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	return newRedisRateLimiter(&scriptCounter{rdb: rdb}, limit, window, prefix)
}

func newRedisRateLimiter(counter windowCounter, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisRateLimiter{counter: counter, limit: limit, window: window, prefix: prefix}
}

// Allow implements Limiter.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := rl.counter.Incr(ctx, rl.prefix+":"+key, rl.window)
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return count <= int64(rl.limit), nil
}

type scriptCounter struct {
	rdb redis.Scripter
}

func (c *scriptCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	ms := window.Milliseconds()
	if ms <= 0 {
		ms = time.Minute.Milliseconds()
	}
	res, err := redisFixedWindowScript.Run(ctx, c.rdb, []string{key}, ms).Result()
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", res)
	}
}

// RateLimitMiddleware rejects requests over the limiter's budget with 429.
// A limiter error lets the request through: a Redis outage must not take
// bookings down with it.
func RateLimitMiddleware(limiter Limiter, sc *ServerContext, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := limiter.Allow(r.Context(), getClientIP(r, trustProxy))
			if err != nil {
				sc.Logger().Warn("rate limiter unavailable, allowing request",
					logging.RequestID(RequestIDFromContext(r.Context())),
					logging.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				sc.Metrics().RecordRateLimited(r.Context(), r.URL.Path)
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP address from the request.
// Proxy headers are only trusted when trustProxy is set.
func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
