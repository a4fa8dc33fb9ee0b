package embedding

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Stats is a snapshot of cache effectiveness counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Size      int   `json:"size"`
	Dimension int   `json:"dimension"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache wraps an Embedder with an exact-match text cache.
//
// Lookups key on the raw text string; no normalization is applied, so
// texts differing only in whitespace are distinct entries. When a
// maximum entry count is set, the least recently used entry is evicted.
// Safe for concurrent use.
type Cache struct {
	inner Embedder

	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
	hits       int64
	misses     int64

	metrics *Metrics
}

type cacheEntry struct {
	text   string
	vector []float32
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithMaxEntries bounds the cache to n entries with LRU eviction.
// Zero or negative means unbounded.
func WithMaxEntries(n int) CacheOption {
	return func(c *Cache) { c.maxEntries = n }
}

// WithCacheMetrics attaches OpenTelemetry instrumentation.
func WithCacheMetrics(m *Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// NewCache wraps inner with an exact-match cache.
func NewCache(inner Embedder, opts ...CacheOption) *Cache {
	c := &Cache{
		inner:   inner,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed implements Embedder. A repeated text returns the cached vector
// without invoking the inner embedder. Failures cache nothing.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	if elem, ok := c.entries[text]; ok {
		c.hits++
		c.order.MoveToFront(elem)
		vec := cloneVector(elem.Value.(*cacheEntry).vector)
		c.mu.Unlock()
		c.metrics.recordHit(ctx)
		return vec, nil
	}
	c.misses++
	c.mu.Unlock()
	c.metrics.recordMiss(ctx)

	start := time.Now()
	vec, err := c.inner.Embed(ctx, text)
	c.metrics.RecordGeneration(ctx, c.inner.Model(), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// A concurrent miss for the same text may have stored it already;
	// keep the first entry so hits stay observably stable.
	if _, ok := c.entries[text]; !ok {
		elem := c.order.PushFront(&cacheEntry{text: text, vector: cloneVector(vec)})
		c.entries[text] = elem
		if c.maxEntries > 0 && c.order.Len() > c.maxEntries {
			oldest := c.order.Back()
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).text)
		}
	}
	c.mu.Unlock()

	return vec, nil
}

// Model implements Embedder.
func (c *Cache) Model() string { return c.inner.Model() }

// Dimension implements Embedder.
func (c *Cache) Dimension() int { return c.inner.Dimension() }

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Size:      c.order.Len(),
		Dimension: c.inner.Dimension(),
	}
}

// cloneVector copies v so callers cannot mutate cached state.
func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
