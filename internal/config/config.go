// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Backend API settings.
	BackendURL     string // Base URL of the platform API the console fronts.
	BackendAPIKey  string
	BackendTimeout time.Duration
	ProjectID      int64 // Project whose tasks the console manages.

	// Outbound rate limiting toward the backend.
	BackendRequestsPerSecond float64
	BackendBurst             int

	// Inbound rate limiting on mutation routes.
	MutationRatePerMinute int

	// Optimization polling.
	PollInterval time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel            string
	TraceListLimit      int
	MaxRequestBodyBytes int64 // Maximum request body size in bytes.
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		Port:                     envInt("R4U_PORT", 8080, &errs),
		ReadTimeout:              envDuration("R4U_READ_TIMEOUT", 30*time.Second, &errs),
		WriteTimeout:             envDuration("R4U_WRITE_TIMEOUT", 30*time.Second, &errs),
		BackendURL:               envStr("R4U_BACKEND_URL", "http://localhost:8000/api"),
		BackendAPIKey:            envStr("R4U_BACKEND_API_KEY", ""),
		BackendTimeout:           envDuration("R4U_BACKEND_TIMEOUT", 30*time.Second, &errs),
		ProjectID:                int64(envInt("R4U_PROJECT_ID", 1, &errs)),
		BackendRequestsPerSecond: envFloat("R4U_BACKEND_RPS", 20, &errs),
		BackendBurst:             envInt("R4U_BACKEND_BURST", 10, &errs),
		MutationRatePerMinute:    envInt("R4U_MUTATION_RATE_PER_MINUTE", 60, &errs),
		PollInterval:             envDuration("R4U_POLL_INTERVAL", 4*time.Second, &errs),
		OTELEndpoint:             envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:             envBool("OTEL_EXPORTER_OTLP_INSECURE", false, &errs),
		ServiceName:              envStr("OTEL_SERVICE_NAME", "r4u-console"),
		LogLevel:                 envStr("R4U_LOG_LEVEL", "info"),
		TraceListLimit:           envInt("R4U_TRACE_LIST_LIMIT", 50, &errs),
		MaxRequestBodyBytes:      int64(envInt("R4U_MAX_REQUEST_BODY_BYTES", 1*1024*1024, &errs)), // 1 MB default
	}
	if len(errs) > 0 {
		return Config{}, errs[0]
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("config: R4U_BACKEND_URL is required")
	}
	if c.ProjectID <= 0 {
		return fmt.Errorf("config: R4U_PROJECT_ID must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: R4U_POLL_INTERVAL must be positive")
	}
	if c.TraceListLimit <= 0 {
		return fmt.Errorf("config: R4U_TRACE_LIST_LIMIT must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: R4U_MAX_REQUEST_BODY_BYTES must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s=%q is not a valid integer", key, v))
		return defaultVal
	}
	return n
}

func envFloat(key string, defaultVal float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s=%q is not a valid number", key, v))
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s=%q is not a valid boolean", key, v))
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s=%q is not a valid duration", key, v))
		return defaultVal
	}
	return d
}
