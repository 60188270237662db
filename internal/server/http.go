package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTP server defaults.
const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 120 * time.Second

	// DefaultRequestTimeout bounds a single API request, including the
	// calendar round trips it makes.
	DefaultRequestTimeout = 25 * time.Second
)

// HTTPServerConfig configures the public HTTP server.
type HTTPServerConfig struct {
	// CORSAllowedOrigins lists the booking page origins allowed to call the API.
	CORSAllowedOrigins []string

	// BookLimiter limits POST /book per client. Nil disables rate limiting.
	BookLimiter Limiter

	// TrustProxy makes the rate limiter key on X-Forwarded-For.
	TrustProxy bool

	// MCPHandler, when set, is mounted at /mcp.
	MCPHandler http.Handler

	// RequestTimeout overrides DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// HTTPServer serves the scheduling API, the health endpoints and optionally
// the MCP streamable HTTP transport.
type HTTPServer struct {
	sc         *ServerContext
	health     *HealthChecker
	handler    http.Handler
	httpServer *http.Server
}

// NewHTTPServer builds the router. It does not listen until Start.
func NewHTTPServer(sc *ServerContext, cfg HTTPServerConfig) (*HTTPServer, error) {
	if sc == nil {
		return nil, errors.New("server context is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	s := &HTTPServer{
		sc:     sc,
		health: NewHealthChecker(sc),
	}
	s.handler = otelhttp.NewHandler(s.routes(cfg), "slotbook-api")
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return sc.Context() },
	}
	return s, nil
}

func (s *HTTPServer) routes(cfg HTTPServerConfig) http.Handler {
	api := NewAPI(s.sc)

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(AccessLogMiddleware(s.sc))
	r.Use(securityHeadersMiddleware)

	s.health.RegisterHealthEndpoints(r)

	r.Group(func(r chi.Router) {
		r.Use(CORSMiddleware(CORSPolicy{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}))
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Get("/availability", api.Availability)
		r.With(RateLimitMiddleware(cfg.BookLimiter, s.sc, cfg.TrustProxy)).Post("/book", api.Book)

		// Preflight requests never reach a handler when CORS matches;
		// these answer the ones that do not.
		r.Options("/availability", noContent)
		r.Options("/book", noContent)
	})

	if cfg.MCPHandler != nil {
		r.Handle("/mcp", cfg.MCPHandler)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// Health returns the health checker backing /healthz and /readyz.
func (s *HTTPServer) Health() *HealthChecker {
	return s.health
}

// Start listens on addr and serves until Shutdown. It returns
// http.ErrServerClosed after a graceful shutdown.
func (s *HTTPServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *HTTPServer) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown marks the server not ready and gracefully shuts it down.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	return s.httpServer.Shutdown(ctx)
}
