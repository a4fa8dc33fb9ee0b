package bank

import "time"

// Outcome classifies how a task ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeUnknown Outcome = "unknown"
)

// Valid reports whether the outcome is one of the known values.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomeUnknown:
		return true
	}
	return false
}

// Trajectory is the record of one task execution submitted for storage.
type Trajectory struct {
	// Description is the task description; it is what gets embedded and
	// matched against future queries. Required.
	Description string

	// Domain groups related trajectories for confidence tracking and
	// retrieval filtering. Empty means the general domain.
	Domain string

	// SessionID ties the trajectory to its session for consolidation.
	SessionID string

	Input    string
	Output   string
	Strategy string
	Critique string
	Tags     []string
	Metadata map[string]string
}

// TaskMetrics carries measured costs for a finished task. A zero Reward
// means unmeasured and is treated as the neutral 0.5.
type TaskMetrics struct {
	Reward     float64
	LatencyMS  int64
	TokensUsed int64
}

// NeutralReward is substituted when a trajectory carries no reward.
const NeutralReward = 0.5

// LearnedStrategy is the read-model returned by retrieval: the best
// prior strategy for a task, synthesized from stored episodes.
type LearnedStrategy struct {
	Strategy           string
	Domain             string
	Confidence         float64
	SupportingEpisodes []int64
	Similarity         float64
}

// StoreResult reports the outcome of persisting a trajectory.
type StoreResult struct {
	EpisodeID       int64
	ConfidenceDelta float64
}

// ConsolidationReport summarizes one session-end consolidation.
type ConsolidationReport struct {
	Status            string
	SessionID         string
	RunID             int64
	EpisodesProcessed int
	MemoriesCreated   int
	CompressionRatio  float64
	CompletedAt       time.Time
}
