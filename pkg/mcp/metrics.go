package mcp

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/mcpgate/pkg/mcp"

// Metrics holds call-level instrumentation. All record methods are
// nil-receiver safe so an uninstrumented Client costs nothing.
type Metrics struct {
	meter       metric.Meter
	logger      *zap.Logger
	calls       metric.Int64Counter
	errors      metric.Int64Counter
	rateLimited metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewMetrics creates a Metrics instance on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.calls, err = m.meter.Int64Counter(
		"mcpgate.client.calls_total",
		metric.WithDescription("Total tool calls labeled by server and tool"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		m.logger.Warn("failed to create calls counter", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"mcpgate.client.errors_total",
		metric.WithDescription("Total failed tool calls labeled by server and tool"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.rateLimited, err = m.meter.Int64Counter(
		"mcpgate.client.rate_limited_total",
		metric.WithDescription("Tool calls rejected by the rate limiter"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		m.logger.Warn("failed to create rate limited counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"mcpgate.client.call_duration_seconds",
		metric.WithDescription("Tool call duration in seconds, labeled by server and tool"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}
}

func (m *Metrics) recordCall(ctx context.Context, server, tool string, d time.Duration, callErr error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("tool", tool),
	)
	if m.calls != nil {
		m.calls.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if callErr != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) recordRateLimited(ctx context.Context, server, tool string) {
	if m == nil {
		return
	}
	if m.rateLimited != nil {
		m.rateLimited.Add(ctx, 1, metric.WithAttributes(
			attribute.String("server", server),
			attribute.String("tool", tool),
		))
	}
}
