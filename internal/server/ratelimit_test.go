package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRateLimiter_Allow(t *testing.T) {
	rl := NewLocalRateLimiter(3)
	defer rl.Stop()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "192.168.1.1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed (within burst)", i+1)
	}

	ok, err := rl.Allow(ctx, "192.168.1.1")
	require.NoError(t, err)
	assert.False(t, ok, "burst exhausted")

	// A different client has its own bucket
	ok, err = rl.Allow(ctx, "192.168.1.2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalRateLimiter_Sweep(t *testing.T) {
	rl := NewLocalRateLimiter(1)
	defer rl.Stop()

	_, _ = rl.Allow(context.Background(), "a")
	rl.sweep(time.Now())
	assert.Len(t, rl.limiters, 1, "recently used bucket is kept")

	rl.sweep(time.Now().Add(11 * time.Minute))
	assert.Empty(t, rl.limiters)
}

type fakeCounter struct {
	counts map[string]int64
	keys   []string
	window time.Duration
	err    error
}

func (c *fakeCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.keys = append(c.keys, key)
	c.window = window
	c.counts[key]++
	return c.counts[key], nil
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	counter := &fakeCounter{}
	rl := newRedisRateLimiter(counter, 2, time.Minute, "slotbook:ratelimit")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, "slotbook:ratelimit:10.0.0.1", counter.keys[0])
	assert.Equal(t, time.Minute, counter.window)
}

func TestRedisRateLimiter_Defaults(t *testing.T) {
	rl := newRedisRateLimiter(&fakeCounter{}, 0, 0, " ")
	assert.Equal(t, 60, rl.limit)
	assert.Equal(t, time.Minute, rl.window)
	assert.Equal(t, "rl", rl.prefix)
}

func TestRateLimitMiddleware(t *testing.T) {
	f := newFixture(t)
	counter := &fakeCounter{}
	h := newTestHandler(t, f, HTTPServerConfig{
		BookLimiter: newRedisRateLimiter(counter, 1, time.Minute, "test"),
	})

	body := bookBody("2025-06-02T10:00:00Z", "2025-06-02T10:30:00Z")

	rec := doRequest(h, http.MethodPost, "/book", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(h, http.MethodPost, "/book", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "Too many requests", decodeError(t, rec))
	assert.Len(t, f.inserts, 1)

	// Availability is not limited
	rec = doRequest(h, http.MethodGet, "/availability", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(t, f, HTTPServerConfig{
		BookLimiter: newRedisRateLimiter(&fakeCounter{err: errors.New("connection refused")}, 1, time.Minute, "test"),
	})

	rec := doRequest(h, http.MethodPost, "/book", bookBody("2025-06-02T10:00:00Z", "2025-06-02T10:30:00Z"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.inserts, 1)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{
			name:       "remote addr",
			remoteAddr: "203.0.113.7:4711",
			want:       "203.0.113.7",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:4711",
			want:       "2001:db8::1",
		},
		{
			name:       "forwarded header ignored without trust",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			want:       "10.0.0.1",
		},
		{
			name:       "first forwarded address with trust",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.2"},
			trustProxy: true,
			want:       "198.51.100.1",
		},
		{
			name:       "real ip with trust",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "198.51.100.9"},
			trustProxy: true,
			want:       "198.51.100.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req, tt.trustProxy))
		})
	}
}
