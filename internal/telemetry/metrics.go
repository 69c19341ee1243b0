package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the console's instruments. All instruments come from the
// global meter provider, so they are no-ops until Init runs with an
// endpoint configured.
type Metrics struct {
	PageRenders    metric.Int64Counter
	RenderDuration metric.Float64Histogram
	BackendErrors  metric.Int64Counter
}

// NewMetrics registers the console's instruments.
func NewMetrics() (*Metrics, error) {
	meter := Meter("r4u-console")

	pageRenders, err := meter.Int64Counter("console.page.renders",
		metric.WithDescription("Pages and fragments rendered"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create counter: %w", err)
	}
	renderDuration, err := meter.Float64Histogram("console.page.render_duration_ms",
		metric.WithDescription("Wall time spent handling a page request"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create histogram: %w", err)
	}
	backendErrors, err := meter.Int64Counter("console.backend.errors",
		metric.WithDescription("Failed calls to the platform API"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create counter: %w", err)
	}

	return &Metrics{
		PageRenders:    pageRenders,
		RenderDuration: renderDuration,
		BackendErrors:  backendErrors,
	}, nil
}

// RecordRender records one handled page request.
func (m *Metrics) RecordRender(ctx context.Context, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.PageRenders.Add(ctx, 1, attrs)
	m.RenderDuration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}

// RecordBackendError records one failed backend call.
func (m *Metrics) RecordBackendError(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.BackendErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}
