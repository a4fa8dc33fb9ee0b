package bank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/reasoningbank/internal/breaker"
)

func TestConsolidate_GroupsByDomain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.storeTask(t, "fix the login form validation", "coding", "sess-1", "reproduce first", OutcomeSuccess, 0.9)
	env.storeTask(t, "fix the signup form validation", "coding", "sess-1", "reproduce first", OutcomeSuccess, 0.8)
	env.storeTask(t, "compare caching libraries", "research", "sess-1", "", OutcomeFailure, 0.3)
	env.storeTask(t, "unrelated session task", "coding", "sess-2", "", OutcomeSuccess, 0.9)

	report, err := env.service.SessionEndConsolidate(ctx, "sess-1")
	require.NoError(t, err)

	assert.Equal(t, "completed", report.Status)
	assert.Equal(t, "sess-1", report.SessionID)
	assert.Equal(t, 3, report.EpisodesProcessed)
	assert.Equal(t, 2, report.MemoriesCreated)
	assert.InDelta(t, 2.0/3.0, report.CompressionRatio, 1e-9)

	memories, err := env.store.Memories(ctx, report.RunID)
	require.NoError(t, err)
	require.Len(t, memories, 2)

	// Domains are summarized in sorted order.
	assert.Contains(t, memories[0].Summary, "coding: 2 episode(s), 2 succeeded")
	assert.Contains(t, memories[0].Summary, "reproduce first")
	assert.Len(t, memories[0].SourceEpisodeIDs, 2)
	assert.Contains(t, memories[1].Summary, "research: 1 episode(s), 0 succeeded")
}

func TestConsolidate_EmptyDomainBecomesGeneral(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.storeTask(t, "tidy the workspace notes", "", "sess-g", "", OutcomeSuccess, 0.6)

	report, err := env.service.SessionEndConsolidate(ctx, "sess-g")
	require.NoError(t, err)
	require.Equal(t, 1, report.MemoriesCreated)

	memories, err := env.store.Memories(ctx, report.RunID)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Contains(t, memories[0].Summary, "general:")
}

func TestConsolidate_EmptySessionIsCleanNoop(t *testing.T) {
	env := newTestEnv(t)

	report, err := env.service.SessionEndConsolidate(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, "empty", report.Status)
	assert.Equal(t, 0, report.EpisodesProcessed)
	assert.InDelta(t, 1.0, report.CompressionRatio, 1e-9, "empty sessions define the ratio as 1.0")

	runs, err := env.store.Runs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs, "a no-op consolidation records no run")
}

func TestConsolidate_RepeatRunsAppend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.storeTask(t, "triage the backlog", "ops", "sess-r", "", OutcomeSuccess, 0.7)

	first, err := env.service.SessionEndConsolidate(ctx, "sess-r")
	require.NoError(t, err)
	second, err := env.service.SessionEndConsolidate(ctx, "sess-r")
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)

	runs, err := env.store.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestConsolidate_ImportanceBlendsSuccessAndReward(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.storeTask(t, "ship the release", "ops", "sess-i", "", OutcomeSuccess, 0.9)
	env.storeTask(t, "roll back the release", "ops", "sess-i", "", OutcomeFailure, 0.1)

	report, err := env.service.SessionEndConsolidate(ctx, "sess-i")
	require.NoError(t, err)

	memories, err := env.store.Memories(ctx, report.RunID)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	// success rate 0.5, mean reward 0.5 -> importance 0.5
	assert.InDelta(t, 0.5, memories[0].ImportanceScore, 1e-9)
}

func TestConsolidate_BreakerOpenFails(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < breaker.DefaultFailureThreshold; i++ {
		env.breaker.Failure()
	}

	_, err := env.service.SessionEndConsolidate(context.Background(), "sess-x")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestConsolidate_FlushesSessionBuffer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.storeTask(t, "collect the logs", "ops", "sess-f", "", OutcomeSuccess, 0.7)
	require.Equal(t, 1, env.service.Sessions().Active())

	_, err := env.service.SessionEndConsolidate(ctx, "sess-f")
	require.NoError(t, err)
	assert.Equal(t, 0, env.service.Sessions().Active())
}
