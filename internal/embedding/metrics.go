package embedding

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/reasoningbank/internal/embedding"

// Metrics holds OpenTelemetry instruments for embedding computation
// and cache effectiveness. A nil *Metrics is valid and records
// nothing, so instrumentation stays optional in tests.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	duration metric.Float64Histogram
	hits     metric.Int64Counter
	misses   metric.Int64Counter
	errors   metric.Int64Counter
}

// NewMetrics creates embedding instrumentation.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"reasoningbank.embedding.generation_duration_seconds",
		metric.WithDescription("Duration of embedding generation in seconds, labeled by model and provider"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.hits, err = m.meter.Int64Counter(
		"reasoningbank.embedding.cache_hits_total",
		metric.WithDescription("Exact-match embedding cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		m.logger.Warn("failed to create cache hits counter", zap.Error(err))
	}

	m.misses, err = m.meter.Int64Counter(
		"reasoningbank.embedding.cache_misses_total",
		metric.WithDescription("Exact-match embedding cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		m.logger.Warn("failed to create cache misses counter", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"reasoningbank.embedding.errors_total",
		metric.WithDescription("Embedding computation failures by model"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordGeneration records one embedding computation.
func (m *Metrics) RecordGeneration(ctx context.Context, model string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("model", model)}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *Metrics) recordHit(ctx context.Context) {
	if m == nil || m.hits == nil {
		return
	}
	m.hits.Add(ctx, 1)
}

func (m *Metrics) recordMiss(ctx context.Context) {
	if m == nil || m.misses == nil {
		return
	}
	m.misses.Add(ctx, 1)
}
