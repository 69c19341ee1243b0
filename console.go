// Package console is the public API for embedding the r4u task console.
//
// The console is a thin presentation layer over the platform's REST API:
// it renders the task dashboard, proxies mutations as form posts, and
// exposes a read-only MCP surface at /mcp. Embedders construct and extend
// the server without forking it:
//
//	app, err := console.New(
//	    console.WithVersion(version),
//	    console.WithLogger(logger),
//	    console.WithExtraRoutes(myRoutes),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: console (root)
// imports internal/*, but internal/* never imports console (root).
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/r4u-dev/r4u-console/internal/api"
	"github.com/r4u-dev/r4u-console/internal/config"
	"github.com/r4u-dev/r4u-console/internal/mcp"
	"github.com/r4u-dev/r4u-console/internal/ratelimit"
	"github.com/r4u-dev/r4u-console/internal/telemetry"
	"github.com/r4u-dev/r4u-console/internal/web"
)

// App is the console server lifecycle. Construct with New(), run with
// Run(). App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	client       *api.Client
	srv          *web.Server
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the console. It loads configuration, constructs the
// backend client, and wires all subsystems, returning a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.backendURL != "" {
		cfg.BackendURL = o.backendURL
	}
	if o.apiKey != "" {
		cfg.BackendAPIKey = o.apiKey
	}
	if o.projectID != 0 {
		cfg.ProjectID = o.projectID
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("console starting", "version", version, "port", cfg.Port, "project_id", cfg.ProjectID)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("metrics: %w", err)
	}

	// Backend API client.
	client, err := api.NewClient(api.Config{
		BaseURL:           cfg.BackendURL,
		APIKey:            cfg.BackendAPIKey,
		HTTPClient:        o.httpClient,
		Timeout:           cfg.BackendTimeout,
		RequestsPerSecond: cfg.BackendRequestsPerSecond,
		Burst:             cfg.BackendBurst,
	})
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("backend client: %w", err)
	}

	// Inbound rate limiter for mutation routes.
	var limiter ratelimit.Limiter
	if cfg.MutationRatePerMinute > 0 {
		burst := cfg.MutationRatePerMinute / 6
		if burst < 1 {
			burst = 1
		}
		limiter = ratelimit.NewMemoryLimiter(float64(cfg.MutationRatePerMinute)/60, burst)
		logger.Info("mutation rate limiting: memory (per-IP token bucket)",
			"per_minute", cfg.MutationRatePerMinute, "burst", burst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("mutation rate limiting: disabled")
	}

	// MCP server (mounted at /mcp by the HTTP server).
	mcpSrv := mcp.New(client, cfg.ProjectID, version, logger)

	srv := web.New(web.Config{
		Backend:             client,
		Logger:              logger,
		Metrics:             metrics,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		ExtraRoutes:         o.routeRegistrars,
		Middleware:          o.middlewares,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		ProjectID:           cfg.ProjectID,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		PollInterval:        cfg.PollInterval,
		TraceLimit:          cfg.TraceListLimit,
	})

	return &App{
		cfg:          cfg,
		client:       client,
		srv:          srv,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Handler returns the root HTTP handler. Useful for embedding the console
// under an existing server or in tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically —
// callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, stops the optimization poll,
// and closes the rate limiter and OTEL providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("console shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	_ = a.limiter.Close()
	_ = a.otelShutdown(context.Background())

	a.logger.Info("console stopped")
	return nil
}
