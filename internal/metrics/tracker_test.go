package metrics

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTracker_Counters(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "metrics.json"), zap.NewNop())
	ctx := context.Background()

	tr.RecordRetrieval(ctx, true, false)
	tr.RecordRetrieval(ctx, false, false)
	tr.RecordRetrieval(ctx, false, true)
	tr.RecordStore(ctx, nil)
	tr.RecordStore(ctx, os.ErrClosed)
	tr.RecordConsolidation(ctx)
	tr.RecordBreakerTrip(ctx)

	s := tr.Report().Summary
	assert.Equal(t, int64(3), s.RetrievalAttempts)
	assert.Equal(t, int64(1), s.RetrievalHits)
	assert.Equal(t, int64(1), s.RetrievalDegraded)
	assert.Equal(t, int64(2), s.StoreOps)
	assert.Equal(t, int64(1), s.StoreFailures)
	assert.Equal(t, int64(1), s.Consolidations)
	assert.Equal(t, int64(1), s.BreakerTrips)
}

func TestTracker_LatencyAggregates(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "metrics.json"), zap.NewNop())
	ctx := context.Background()

	tr.ObserveLatency(ctx, "retrieval", 10*time.Millisecond)
	tr.ObserveLatency(ctx, "retrieval", 30*time.Millisecond)
	tr.ObserveLatency(ctx, "store", 5*time.Millisecond)

	perf := tr.Report().Performance
	require.Contains(t, perf, "retrieval")
	retrieval := perf["retrieval"]
	assert.Equal(t, int64(2), retrieval.Count)
	assert.InDelta(t, 40, retrieval.TotalMS, 0.01)
	assert.InDelta(t, 20, retrieval.AvgMS, 0.01)
	assert.InDelta(t, 10, retrieval.MinMS, 0.01)
	assert.InDelta(t, 30, retrieval.MaxMS, 0.01)

	assert.Equal(t, int64(1), perf["store"].Count)
}

func TestTracker_SaveWritesReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "metrics.json")
	tr := New(path, zap.NewNop())
	ctx := context.Background()

	tr.RecordRetrieval(ctx, true, false)
	tr.ObserveLatency(ctx, "retrieval", 7*time.Millisecond)
	require.NoError(t, tr.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var report Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, int64(1), report.Summary.RetrievalAttempts)
	assert.Equal(t, int64(1), report.Performance["retrieval"].Count)
	assert.False(t, report.GeneratedAt.IsZero())

	// No stray temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTracker_SetCacheStats(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "metrics.json"), zap.NewNop())
	tr.SetCacheStats(9, 3)

	s := tr.Report().Summary
	assert.Equal(t, int64(9), s.CacheHits)
	assert.Equal(t, int64(3), s.CacheMisses)
}

func TestTracker_DefaultPath(t *testing.T) {
	tr := New("", zap.NewNop())
	assert.Equal(t, DefaultReportPath, tr.Path())
}
