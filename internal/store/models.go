package store

import "time"

// Episode is one recorded task execution.
type Episode struct {
	ID         int64
	TS         float64
	SessionID  string
	Domain     string
	Task       string
	Input      string
	Output     string
	Critique   string
	Strategy   string
	Reward     float64
	Success    bool
	LatencyMS  int64
	TokensUsed int64
	Tags       []string
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Candidate is an episode joined with its decoded embedding vector,
// the unit retrieval ranks over.
type Candidate struct {
	Episode
	Vector []float32
	Model  string
}

// ConsolidatedMemory is a compacted summary distilled from a group of
// episodes.
type ConsolidatedMemory struct {
	ID               int64
	Summary          string
	SourceEpisodeIDs []int64
	RunID            int64
	ImportanceScore  float64
	CreatedAt        time.Time
}

// ConsolidationRun records one consolidation pass.
type ConsolidationRun struct {
	ID                int64
	RunType           string
	EpisodesProcessed int
	MemoriesCreated   int
	CompressionRatio  float64
	StartedAt         time.Time
	CompletedAt       time.Time
}

// DomainConfidence is the persisted per-domain confidence aggregate.
type DomainConfidence struct {
	Domain       string
	Confidence   float64
	Observations int
	UpdatedAt    time.Time
}
