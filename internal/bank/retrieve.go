package bank

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reasoningbank/internal/store"
)

// scored pairs a candidate episode with its query similarity.
type scored struct {
	candidate store.Candidate
	sim       float64
}

// PreTaskRetrieve returns the best prior strategy for a task, or nil
// when nothing relevant is stored. Pure read: the only side effects are
// embedding cache population and metrics counters.
//
// With the breaker open the call degrades to (nil, nil) immediately
// without touching storage.
func (s *Service) PreTaskRetrieve(ctx context.Context, taskDesc, domain string, k int) (*LearnedStrategy, error) {
	start := s.now()
	if k <= 0 {
		k = s.opts.TopK
	}

	if !s.breaker.Allow() {
		s.logger.Warn("retrieval degraded, breaker open",
			zap.String("domain", domain))
		s.recordRetrieval(ctx, false, true, start)
		return nil, nil
	}

	query, err := s.embedder.Embed(ctx, taskDesc)
	if err != nil {
		// Embedding trouble is not a store failure; the admitted slot is
		// released without recording an outcome.
		s.breaker.Release()
		s.recordRetrieval(ctx, false, false, start)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	candidates, err := s.store.Candidates(ctx, domain, s.opts.CandidateLimit)
	if err != nil {
		if s.breaker.Failure() {
			s.recordBreakerTrip(ctx)
		}
		s.recordRetrieval(ctx, false, false, start)
		return nil, fmt.Errorf("loading candidates: %w", err)
	}
	s.breaker.Success()

	if len(candidates) == 0 {
		s.recordRetrieval(ctx, false, false, start)
		return nil, nil
	}

	ranked := rank(query, candidates)
	if ranked[0].sim < s.opts.Threshold {
		s.logger.Debug("no candidate above threshold",
			zap.Float64("best", ranked[0].sim),
			zap.Float64("threshold", s.opts.Threshold))
		s.recordRetrieval(ctx, false, false, start)
		return nil, nil
	}

	best := ranked[0].candidate
	supporting := make([]int64, 0, k)
	for _, r := range ranked {
		if len(supporting) == k || r.sim < s.opts.Threshold {
			break
		}
		supporting = append(supporting, r.candidate.ID)
	}

	confidence := neutralPrior
	if dc, err := s.store.DomainConfidence(ctx, best.Domain); err == nil && dc != nil {
		confidence = dc.Confidence
	}

	strategy := best.Strategy
	if strategy == "" {
		strategy = best.Output
	}

	s.recordRetrieval(ctx, true, false, start)
	return &LearnedStrategy{
		Strategy:           strategy,
		Domain:             best.Domain,
		Confidence:         confidence,
		SupportingEpisodes: supporting,
		Similarity:         ranked[0].sim,
	}, nil
}

// rank orders candidates by similarity descending, ties broken by newer
// creation time, then by higher id for full determinism.
func rank(query []float32, candidates []store.Candidate) []scored {
	ranked := make([]scored, len(candidates))
	for i, c := range candidates {
		ranked[i] = scored{candidate: c, sim: store.CosineSimilarity(query, c.Vector)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].sim != ranked[j].sim {
			return ranked[i].sim > ranked[j].sim
		}
		if !ranked[i].candidate.CreatedAt.Equal(ranked[j].candidate.CreatedAt) {
			return ranked[i].candidate.CreatedAt.After(ranked[j].candidate.CreatedAt)
		}
		return ranked[i].candidate.ID > ranked[j].candidate.ID
	})
	return ranked
}

func (s *Service) recordRetrieval(ctx context.Context, hit, degraded bool, start time.Time) {
	if s.tracker == nil {
		return
	}
	s.tracker.RecordRetrieval(ctx, hit, degraded)
	s.tracker.ObserveLatency(ctx, "retrieval", s.now().Sub(start))
}

func (s *Service) recordBreakerTrip(ctx context.Context) {
	if s.tracker == nil {
		return
	}
	s.tracker.RecordBreakerTrip(ctx)
}
