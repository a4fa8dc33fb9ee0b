package bank

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reasoningbank/internal/store"
)

// PostTaskStore persists a finished trajectory: the episode row, its
// embedding, and the refreshed domain confidence commit in one
// transaction. Returns the new episode id and the confidence delta.
//
// The embedding is computed before the transaction opens; an embedding
// failure aborts the store with ErrEmbeddingUnavailable and no partial
// write, and does not count against the breaker. An open breaker fails
// with ErrStoreUnavailable so callers can retry.
func (s *Service) PostTaskStore(ctx context.Context, taskID string, trajectory Trajectory, outcome Outcome, taskMetrics TaskMetrics) (StoreResult, error) {
	start := s.now()

	if strings.TrimSpace(trajectory.Description) == "" {
		return StoreResult{}, fmt.Errorf("%w: description is required", ErrInvalidTrajectory)
	}
	if !outcome.Valid() {
		return StoreResult{}, fmt.Errorf("%w: unknown outcome %q", ErrInvalidTrajectory, outcome)
	}

	if !s.breaker.Allow() {
		s.recordStore(ctx, ErrStoreUnavailable, start)
		return StoreResult{}, fmt.Errorf("%w: circuit breaker open", ErrStoreUnavailable)
	}

	vector, err := s.embedder.Embed(ctx, trajectory.Description)
	if err != nil {
		// Not a store I/O failure: release the probe slot without
		// recording an outcome.
		s.breaker.Release()
		s.recordStore(ctx, err, start)
		return StoreResult{}, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	reward := taskMetrics.Reward
	prior, err := s.domainPrior(ctx, trajectory.Domain)
	if err != nil {
		if s.breaker.Failure() {
			s.recordBreakerTrip(ctx)
		}
		s.recordStore(ctx, err, start)
		return StoreResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	confidence, delta := nextConfidence(prior, outcome, reward, s.opts.LearningRate)

	episode := store.Episode{
		TS:         float64(start.UnixNano()) / 1e9,
		SessionID:  trajectory.SessionID,
		Domain:     trajectory.Domain,
		Task:       trajectory.Description,
		Input:      trajectory.Input,
		Output:     trajectory.Output,
		Critique:   trajectory.Critique,
		Strategy:   trajectory.Strategy,
		Reward:     rewardOrNeutral(reward),
		Success:    outcome == OutcomeSuccess,
		LatencyMS:  taskMetrics.LatencyMS,
		TokensUsed: taskMetrics.TokensUsed,
		Tags:       trajectory.Tags,
		Metadata:   withTaskID(trajectory.Metadata, taskID),
	}

	episodeID, err := s.store.InsertEpisode(ctx, store.EpisodeInsert{
		Episode:          episode,
		Vector:           vector,
		Model:            s.embedder.Model(),
		DomainConfidence: confidence,
	})
	if err != nil {
		if s.breaker.Failure() {
			s.recordBreakerTrip(ctx)
		}
		s.recordStore(ctx, err, start)
		return StoreResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.breaker.Success()

	if trajectory.SessionID != "" {
		s.sessions.Record(trajectory.SessionID, Turn{
			Task:    trajectory.Description,
			Domain:  trajectory.Domain,
			Outcome: outcome,
			At:      start,
		})
	}

	s.logger.Info("trajectory stored",
		zap.Int64("episode_id", episodeID),
		zap.String("domain", trajectory.Domain),
		zap.String("outcome", string(outcome)),
		zap.Float64("confidence_delta", delta))
	s.recordStore(ctx, nil, start)

	return StoreResult{EpisodeID: episodeID, ConfidenceDelta: delta}, nil
}

// domainPrior loads the persisted confidence for a domain, nil when the
// domain has never been observed.
func (s *Service) domainPrior(ctx context.Context, domain string) (*float64, error) {
	dc, err := s.store.DomainConfidence(ctx, domain)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, nil
	}
	return &dc.Confidence, nil
}

func rewardOrNeutral(reward float64) float64 {
	if reward <= 0 {
		return NeutralReward
	}
	if reward > 1 {
		return 1
	}
	return reward
}

func withTaskID(meta map[string]string, taskID string) map[string]string {
	if taskID == "" {
		return meta
	}
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["task_id"] = taskID
	return out
}

func (s *Service) recordStore(ctx context.Context, err error, start time.Time) {
	if s.tracker == nil {
		return
	}
	s.tracker.RecordStore(ctx, err)
	s.tracker.ObserveLatency(ctx, "store", s.now().Sub(start))
}
