package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/r4u-dev/r4u-console/internal/ratelimit"
	"github.com/r4u-dev/r4u-console/internal/telemetry"
)

// Server is the console HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Config holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Metrics, Limiter, MCPServer, ExtraRoutes,
// Middleware.
type Config struct {
	// Required dependencies.
	Backend Backend
	Logger  *slog.Logger

	// Optional dependencies (nil = disabled).
	Metrics   *telemetry.Metrics
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// Optional extension points for embedders.
	ExtraRoutes []func(mux *http.ServeMux)
	Middleware  []func(http.Handler) http.Handler

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	ProjectID           int64
	MaxRequestBodyBytes int64

	// Page behavior. Zero values fall back to package defaults.
	PollInterval time.Duration
	TraceLimit   int
}

// New creates a new HTTP server with all routes configured.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := NewHandlers(HandlersDeps{
		Backend:      cfg.Backend,
		Logger:       cfg.Logger,
		Metrics:      cfg.Metrics,
		ProjectID:    cfg.ProjectID,
		Version:      cfg.Version,
		PollInterval: cfg.PollInterval,
		TraceLimit:   cfg.TraceLimit,
	})

	// Mutation routes (form posts) are rate limited by client IP and have
	// their bodies capped; page reads get neither.
	mutRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, cfg.Logger)
	mutate := func(fn http.HandlerFunc) http.Handler {
		return mutRL(maxBodyMiddleware(cfg.MaxRequestBodyBytes, fn))
	}

	mux := http.NewServeMux()

	// Pages.
	mux.HandleFunc("GET /{$}", h.HandleTasks)
	mux.HandleFunc("GET /tasks/{id}", h.HandleTask)
	mux.HandleFunc("GET /tasks/{id}/traces/{trace_id}", h.HandleTraceDetail)
	mux.HandleFunc("GET /tasks/{id}/traces/{trace_id}/http", h.HandleTraceHTTP)
	mux.HandleFunc("GET /evaluations/{id}", h.HandleEvaluation)

	// Mutations.
	mux.Handle("POST /tasks/{id}/implementations", mutate(h.HandleCreateImplementation))
	mux.Handle("POST /tasks/{id}/implementations/{impl_id}/delete", mutate(h.HandleDeleteImplementation))
	mux.Handle("POST /tasks/{id}/implementations/{impl_id}/run-evaluation", mutate(h.HandleRunEvaluation))
	mux.Handle("POST /tasks/{id}/evaluation-config", mutate(h.HandleSaveEvaluationConfig))
	mux.Handle("POST /tasks/{id}/test-cases", mutate(h.HandleCreateTestCase))
	mux.Handle("POST /tasks/{id}/test-cases/{tc_id}/delete", mutate(h.HandleDeleteTestCase))
	mux.Handle("POST /tasks/{id}/optimizations", mutate(h.HandleCreateOptimization))
	mux.Handle("POST /tasks/{id}/optimizations/{opt_id}/delete", mutate(h.HandleDeleteOptimization))

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Health (no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	for _, register := range cfg.ExtraRoutes {
		register(mux)
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		handler = cfg.Middleware[i](handler)
	}
	handler = metricsMiddleware(cfg.Metrics, handler)
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server and its background work.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	s.handlers.Close()
	return s.httpServer.Shutdown(ctx)
}

// metricsMiddleware records one data point per handled request.
func metricsMiddleware(m *telemetry.Metrics, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		m.RecordRender(r.Context(), r.URL.Path, wrapped.statusCode, time.Since(start))
	})
}
