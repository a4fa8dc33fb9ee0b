// Package config provides configuration loading for reasoningbank.
package config

import (
	"fmt"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Database      DatabaseConfig      `koanf:"database"`
	Embedding     EmbeddingConfig     `koanf:"embedding"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Confidence    ConfidenceConfig    `koanf:"confidence"`
	Breaker       BreakerConfig       `koanf:"breaker"`
	Consolidation ConsolidationConfig `koanf:"consolidation"`
	Metrics       MetricsConfig       `koanf:"metrics"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// DatabaseConfig configures the SQLite episode store.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `koanf:"path"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the embedder: "hashing" (local, deterministic) or
	// "remote" (text-embeddings-inference HTTP service).
	Provider string `koanf:"provider"`

	// Model is the embedding model identifier recorded with stored vectors.
	Model string `koanf:"model"`

	// BaseURL is the remote provider's base URL. Required for "remote".
	BaseURL string `koanf:"base_url"`

	// CacheMaxEntries bounds the exact-match cache. 0 means unbounded.
	CacheMaxEntries int `koanf:"cache_max_entries"`
}

// RetrievalConfig tunes similarity search.
type RetrievalConfig struct {
	// Threshold is the minimum cosine similarity for a match.
	Threshold float64 `koanf:"threshold"`

	// TopK is the default number of supporting episodes per strategy.
	TopK int `koanf:"top_k"`

	// CandidateLimit caps how many recent episodes are scanned per query.
	// 0 means scan everything.
	CandidateLimit int `koanf:"candidate_limit"`
}

// ConfidenceConfig tunes the per-domain confidence aggregate.
type ConfidenceConfig struct {
	// LearningRate is the EMA smoothing factor applied per outcome.
	LearningRate float64 `koanf:"learning_rate"`
}

// BreakerConfig tunes the shared circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the
	// breaker.
	FailureThreshold int `koanf:"failure_threshold"`

	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration `koanf:"cooldown"`
}

// ConsolidationConfig tunes background session consolidation.
type ConsolidationConfig struct {
	// Enabled turns the background scheduler on.
	Enabled bool `koanf:"enabled"`

	// Interval is how often the scheduler scans for idle sessions.
	Interval time.Duration `koanf:"interval"`

	// SessionIdle is how long a session must be quiet before it is
	// consolidated automatically.
	SessionIdle time.Duration `koanf:"session_idle"`
}

// MetricsConfig configures the JSON metrics report.
type MetricsConfig struct {
	// Path is where the report is written.
	Path string `koanf:"path"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = ".agentdb/agent.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hashing"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "all-MiniLM-L6-v2"
	}
	if cfg.Retrieval.Threshold == 0 {
		cfg.Retrieval.Threshold = 0.30
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.CandidateLimit == 0 {
		cfg.Retrieval.CandidateLimit = 500
	}
	if cfg.Confidence.LearningRate == 0 {
		cfg.Confidence.LearningRate = 0.2
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.Cooldown == 0 {
		cfg.Breaker.Cooldown = 30 * time.Second
	}
	if cfg.Consolidation.Interval == 0 {
		cfg.Consolidation.Interval = 5 * time.Minute
	}
	if cfg.Consolidation.SessionIdle == 0 {
		cfg.Consolidation.SessionIdle = 30 * time.Minute
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = ".agentdb/metrics.json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "hashing":
	case "remote":
		if c.Embedding.BaseURL == "" {
			return fmt.Errorf("embedding.base_url is required for the remote provider")
		}
	default:
		return fmt.Errorf("embedding.provider must be \"hashing\" or \"remote\", got %q", c.Embedding.Provider)
	}

	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval.threshold must be in [0, 1], got %v", c.Retrieval.Threshold)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Confidence.LearningRate <= 0 || c.Confidence.LearningRate > 1 {
		return fmt.Errorf("confidence.learning_rate must be in (0, 1], got %v", c.Confidence.LearningRate)
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be positive, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.Cooldown <= 0 {
		return fmt.Errorf("breaker.cooldown must be positive, got %v", c.Breaker.Cooldown)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
