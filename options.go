package console

import (
	"log/slog"
	"net/http"
)

// Option configures an App.
type Option func(*resolvedOptions)

// Middleware wraps the root HTTP handler. Applied outermost (before
// routing), so it sees all requests including /health. Multiple
// middlewares are applied in registration order (first-registered =
// outermost).
type Middleware func(http.Handler) http.Handler

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Called once during New() after all console routes are registered.
type RouteRegistrar func(mux *http.ServeMux)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port            int
	backendURL      string
	apiKey          string
	projectID       int64
	logger          *slog.Logger
	version         string
	httpClient      *http.Client
	routeRegistrars []func(mux *http.ServeMux)
	middlewares     []func(http.Handler) http.Handler
}

// WithPort overrides the TCP port from config (R4U_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithBackendURL overrides the platform API base URL from config
// (R4U_BACKEND_URL env var).
func WithBackendURL(url string) Option {
	return func(o *resolvedOptions) { o.backendURL = url }
}

// WithAPIKey overrides the backend credential from config
// (R4U_BACKEND_API_KEY env var).
func WithAPIKey(key string) Option {
	return func(o *resolvedOptions) { o.apiKey = key }
}

// WithProjectID overrides the project scope from config (R4U_PROJECT_ID
// env var).
func WithProjectID(id int64) Option {
	return func(o *resolvedOptions) { o.projectID = id }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithHTTPClient replaces the HTTP client used for backend API calls.
// Useful for injecting test transports or custom TLS configuration.
func WithHTTPClient(client *http.Client) Option {
	return func(o *resolvedOptions) { o.httpClient = client }
}

// WithExtraRoutes registers additional routes on the shared HTTP mux.
// Multiple registrars may be registered; all are called in registration order.
func WithExtraRoutes(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) {
		o.routeRegistrars = append(o.routeRegistrars, fn)
	}
}

// WithMiddleware registers an outermost HTTP middleware.
// Multiple middlewares may be registered. Applied in registration order:
// the first-registered middleware is outermost (called first by every request).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) {
		o.middlewares = append(o.middlewares, mw)
	}
}
