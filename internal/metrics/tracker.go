// Package metrics aggregates operation counters and latencies and writes
// them to a JSON report for offline inspection.
//
// The tracker keeps local aggregates so the report can be produced
// without a metrics backend, and mirrors every observation into
// OpenTelemetry instruments for deployments that scrape one.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/reasoningbank/internal/metrics"

// DefaultReportPath is where Save writes the report when no path is
// configured, relative to the working directory.
const DefaultReportPath = ".agentdb/metrics.json"

// Summary holds the lifetime operation counters.
type Summary struct {
	RetrievalAttempts int64 `json:"retrieval_attempts"`
	RetrievalHits     int64 `json:"retrieval_hits"`
	RetrievalDegraded int64 `json:"retrieval_degraded"`
	StoreOps          int64 `json:"store_ops"`
	StoreFailures     int64 `json:"store_failures"`
	Consolidations    int64 `json:"consolidations"`
	BreakerTrips      int64 `json:"breaker_trips"`
	CacheHits         int64 `json:"embedding_cache_hits"`
	CacheMisses       int64 `json:"embedding_cache_misses"`
}

// LatencyStats summarizes observed latencies for one operation.
type LatencyStats struct {
	Count   int64   `json:"count"`
	TotalMS float64 `json:"total_ms"`
	AvgMS   float64 `json:"avg_ms"`
	MinMS   float64 `json:"min_ms"`
	MaxMS   float64 `json:"max_ms"`
}

// Report is the JSON document Save writes.
type Report struct {
	Summary     Summary                 `json:"summary"`
	Performance map[string]LatencyStats `json:"performance"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// Tracker accumulates counters and latency aggregates. Safe for
// concurrent use.
type Tracker struct {
	mu        sync.Mutex
	summary   Summary
	latencies map[string]*LatencyStats
	path      string
	logger    *zap.Logger

	operations metric.Int64Counter
	duration   metric.Float64Histogram
}

// New creates a Tracker writing its report to path (DefaultReportPath
// when empty).
func New(path string, logger *zap.Logger) *Tracker {
	if path == "" {
		path = DefaultReportPath
	}
	t := &Tracker{
		latencies: make(map[string]*LatencyStats),
		path:      path,
		logger:    logger,
	}

	meter := otel.Meter(instrumentationName)
	var err error
	t.operations, err = meter.Int64Counter(
		"reasoningbank.operations_total",
		metric.WithDescription("Memory operations by name and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		logger.Warn("failed to create operations counter", zap.Error(err))
	}
	t.duration, err = meter.Float64Histogram(
		"reasoningbank.operation_duration_seconds",
		metric.WithDescription("Memory operation latency by name"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}
	return t
}

// RecordRetrieval records one retrieval attempt. hit indicates a
// strategy was returned; degraded indicates the breaker short-circuited
// the read.
func (t *Tracker) RecordRetrieval(ctx context.Context, hit, degraded bool) {
	t.mu.Lock()
	t.summary.RetrievalAttempts++
	if hit {
		t.summary.RetrievalHits++
	}
	if degraded {
		t.summary.RetrievalDegraded++
	}
	t.mu.Unlock()

	t.count(ctx, "retrieval", outcome(hit, degraded))
}

// RecordStore records one storage attempt.
func (t *Tracker) RecordStore(ctx context.Context, err error) {
	t.mu.Lock()
	t.summary.StoreOps++
	if err != nil {
		t.summary.StoreFailures++
	}
	t.mu.Unlock()

	t.count(ctx, "store", outcome(err == nil, false))
}

// RecordConsolidation records one completed consolidation run.
func (t *Tracker) RecordConsolidation(ctx context.Context) {
	t.mu.Lock()
	t.summary.Consolidations++
	t.mu.Unlock()

	t.count(ctx, "consolidation", "success")
}

// RecordBreakerTrip records a closed-to-open breaker transition.
func (t *Tracker) RecordBreakerTrip(ctx context.Context) {
	t.mu.Lock()
	t.summary.BreakerTrips++
	t.mu.Unlock()

	t.count(ctx, "breaker_trip", "open")
}

// SetCacheStats records the embedding cache counters, copied into the
// report at save time.
func (t *Tracker) SetCacheStats(hits, misses int64) {
	t.mu.Lock()
	t.summary.CacheHits = hits
	t.summary.CacheMisses = misses
	t.mu.Unlock()
}

// ObserveLatency records the duration of one named operation.
func (t *Tracker) ObserveLatency(ctx context.Context, operation string, d time.Duration) {
	ms := float64(d.Microseconds()) / 1000

	t.mu.Lock()
	stats, ok := t.latencies[operation]
	if !ok {
		stats = &LatencyStats{MinMS: ms, MaxMS: ms}
		t.latencies[operation] = stats
	}
	stats.Count++
	stats.TotalMS += ms
	if ms < stats.MinMS {
		stats.MinMS = ms
	}
	if ms > stats.MaxMS {
		stats.MaxMS = ms
	}
	t.mu.Unlock()

	if t.duration != nil {
		t.duration.Record(ctx, d.Seconds(),
			metric.WithAttributes(attribute.String("operation", operation)))
	}
}

// Report returns a snapshot of the aggregates.
func (t *Tracker) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	perf := make(map[string]LatencyStats, len(t.latencies))
	for op, stats := range t.latencies {
		s := *stats
		if s.Count > 0 {
			s.AvgMS = s.TotalMS / float64(s.Count)
		}
		perf[op] = s
	}
	return Report{
		Summary:     t.summary,
		Performance: perf,
		GeneratedAt: time.Now().UTC(),
	}
}

// Save writes the report JSON to the configured path. The write goes
// through a temp file and rename so a crashed writer never leaves a
// truncated report.
func (t *Tracker) Save() error {
	report := t.Report()

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metrics report: %w", err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "metrics-*.json")
	if err != nil {
		return fmt.Errorf("creating temp report: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing metrics report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp report: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publishing metrics report: %w", err)
	}
	return nil
}

// Path returns where Save writes the report.
func (t *Tracker) Path() string { return t.path }

func (t *Tracker) count(ctx context.Context, operation, outcome string) {
	if t.operations == nil {
		return
	}
	t.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func outcome(ok, degraded bool) string {
	switch {
	case degraded:
		return "degraded"
	case ok:
		return "success"
	default:
		return "failure"
	}
}
