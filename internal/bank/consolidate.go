package bank

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reasoningbank/internal/store"
)

// generalDomain groups episodes recorded without a domain.
const generalDomain = "general"

// SessionEndConsolidate compacts a finished session: episodes are
// grouped by domain, each group becomes one ConsolidatedMemory, and a
// ConsolidationRun records the pass. Episodes are left untouched;
// retention is an external concern.
//
// Deliberately non-idempotent: consolidating the same session again
// appends new memories and a new run rather than mutating prior ones.
func (s *Service) SessionEndConsolidate(ctx context.Context, sessionID string) (ConsolidationReport, error) {
	start := s.now()

	if sessionID == "" {
		return ConsolidationReport{}, fmt.Errorf("session id is required")
	}

	if !s.breaker.Allow() {
		return ConsolidationReport{}, fmt.Errorf("%w: circuit breaker open", ErrStoreUnavailable)
	}

	episodes, err := s.store.SessionEpisodes(ctx, sessionID)
	if err != nil {
		if s.breaker.Failure() {
			s.recordBreakerTrip(ctx)
		}
		return ConsolidationReport{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if len(episodes) == 0 {
		s.breaker.Success()
		// Nothing to compact; report a clean no-op with ratio 1.0.
		return ConsolidationReport{
			Status:           "empty",
			SessionID:        sessionID,
			CompressionRatio: 1.0,
			CompletedAt:      s.now(),
		}, nil
	}

	groups := lo.GroupBy(episodes, func(e store.Episode) string {
		if e.Domain == "" {
			return generalDomain
		}
		return e.Domain
	})

	domains := lo.Keys(groups)
	sort.Strings(domains)

	memories := make([]store.ConsolidatedMemory, 0, len(domains))
	for _, domain := range domains {
		memories = append(memories, summarizeGroup(domain, groups[domain]))
	}

	completed := s.now()
	run := store.ConsolidationRun{
		RunType:           "session_end",
		EpisodesProcessed: len(episodes),
		MemoriesCreated:   len(memories),
		CompressionRatio:  float64(len(memories)) / float64(len(episodes)),
		StartedAt:         start,
		CompletedAt:       completed,
	}

	runID, err := s.store.InsertConsolidation(ctx, run, memories)
	if err != nil {
		if s.breaker.Failure() {
			s.recordBreakerTrip(ctx)
		}
		return ConsolidationReport{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.breaker.Success()
	s.sessions.Flush(sessionID)

	if s.tracker != nil {
		s.tracker.RecordConsolidation(ctx)
		s.tracker.ObserveLatency(ctx, "consolidation", s.now().Sub(start))
	}
	s.logger.Info("session consolidated",
		zap.String("session_id", sessionID),
		zap.Int("episodes", len(episodes)),
		zap.Int("memories", len(memories)),
		zap.Float64("compression_ratio", run.CompressionRatio))

	return ConsolidationReport{
		Status:            "completed",
		SessionID:         sessionID,
		RunID:             runID,
		EpisodesProcessed: len(episodes),
		MemoriesCreated:   len(memories),
		CompressionRatio:  run.CompressionRatio,
		CompletedAt:       completed,
	}, nil
}

// summarizeGroup produces an extractive summary and importance score for
// one domain's episodes. Importance blends the success rate with the
// mean reward so a domain of lucky failures does not outrank consistent
// wins.
func summarizeGroup(domain string, episodes []store.Episode) store.ConsolidatedMemory {
	succeeded := 0
	var rewardSum float64
	ids := make([]int64, 0, len(episodes))
	var strategies []string
	for _, e := range episodes {
		ids = append(ids, e.ID)
		rewardSum += e.Reward
		if e.Success {
			succeeded++
			if e.Strategy != "" {
				strategies = append(strategies, e.Strategy)
			}
		}
	}

	successRate := float64(succeeded) / float64(len(episodes))
	meanReward := rewardSum / float64(len(episodes))
	importance := (successRate + meanReward) / 2

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d episode(s), %d succeeded", domain, len(episodes), succeeded)
	if len(strategies) > 0 {
		sb.WriteString("; strategies that worked: ")
		sb.WriteString(strings.Join(lo.Uniq(strategies), "; "))
	}

	return store.ConsolidatedMemory{
		Summary:          sb.String(),
		SourceEpisodeIDs: ids,
		ImportanceScore:  importance,
	}
}
