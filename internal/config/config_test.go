package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ".agentdb/agent.db", cfg.Database.Path)
	assert.Equal(t, "hashing", cfg.Embedding.Provider)
	assert.Equal(t, "all-MiniLM-L6-v2", cfg.Embedding.Model)
	assert.InDelta(t, 0.30, cfg.Retrieval.Threshold, 1e-9)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.2, cfg.Confidence.LearningRate, 1e-9)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Cooldown)
	assert.Equal(t, ".agentdb/metrics.json", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
database:
  path: /var/lib/agent/memory.db
retrieval:
  threshold: 0.45
  top_k: 5
breaker:
  cooldown: 10s
logging:
  format: console
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/agent/memory.db", cfg.Database.Path)
	assert.InDelta(t, 0.45, cfg.Retrieval.Threshold, 1e-9)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 10*time.Second, cfg.Breaker.Cooldown)
	assert.Equal(t, "console", cfg.Logging.Format)

	// Unset fields keep their defaults.
	assert.Equal(t, "hashing", cfg.Embedding.Provider)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ".agentdb/agent.db", cfg.Database.Path)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: from-file.db\n"), 0o600))

	t.Setenv("REASONINGBANK_DATABASE_PATH", "from-env.db")
	t.Setenv("REASONINGBANK_RETRIEVAL_TOP_K", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database.Path)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "onnx" }},
		{"remote without base url", func(c *Config) { c.Embedding.Provider = "remote"; c.Embedding.BaseURL = "" }},
		{"threshold above one", func(c *Config) { c.Retrieval.Threshold = 1.5 }},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = -1 }},
		{"learning rate above one", func(c *Config) { c.Confidence.LearningRate = 1.2 }},
		{"negative cooldown", func(c *Config) { c.Breaker.Cooldown = -time.Second }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
