package bank

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reasoningbank/internal/breaker"
)

func TestStore_SuccessAboveConfidenceYieldsPositiveDelta(t *testing.T) {
	env := newTestEnv(t)

	res := env.storeTask(t, "migrate the user table", "coding", "s1", "expand-contract", OutcomeSuccess, 0.9)
	assert.Greater(t, res.EpisodeID, int64(0))
	assert.Greater(t, res.ConfidenceDelta, 0.0)

	// Second success above the current estimate still raises it.
	res = env.storeTask(t, "migrate the orders table", "coding", "s1", "expand-contract", OutcomeSuccess, 0.95)
	assert.Greater(t, res.ConfidenceDelta, 0.0)
}

func TestStore_FailureYieldsNonPositiveDelta(t *testing.T) {
	env := newTestEnv(t)

	env.storeTask(t, "deploy the canary", "ops", "s1", "", OutcomeSuccess, 0.8)

	for _, reward := range []float64{0.1, 0.5, 0.9} {
		res := env.storeTask(t, "deploy the canary again", "ops", "s1", "", OutcomeFailure, reward)
		assert.LessOrEqual(t, res.ConfidenceDelta, 0.0, "reward=%v", reward)
	}
}

func TestStore_FirstObservationInitializesConfidence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.storeTask(t, "label the dataset", "research", "s1", "", OutcomeSuccess, 0.7)
	assert.InDelta(t, 0.2, res.ConfidenceDelta, 1e-9)

	dc, err := env.store.DomainConfidence(ctx, "research")
	require.NoError(t, err)
	require.NotNil(t, dc)
	assert.InDelta(t, 0.7, dc.Confidence, 1e-9)
	assert.Equal(t, 1, dc.Observations)
}

func TestStore_RequiresDescriptionAndValidOutcome(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.PostTaskStore(ctx, "", Trajectory{Description: "  "}, OutcomeSuccess, TaskMetrics{})
	assert.ErrorIs(t, err, ErrInvalidTrajectory)

	_, err = env.service.PostTaskStore(ctx, "", Trajectory{Description: "x"}, Outcome("maybe"), TaskMetrics{})
	assert.ErrorIs(t, err, ErrInvalidTrajectory)
}

func TestStore_BreakerOpenFailsLoudly(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < breaker.DefaultFailureThreshold; i++ {
		env.breaker.Failure()
	}

	_, err := env.service.PostTaskStore(context.Background(), "", Trajectory{
		Description: "record this task",
	}, OutcomeSuccess, TaskMetrics{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestStore_StoreErrorsTripBreaker(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Kill the database underneath the service.
	require.NoError(t, env.store.Close())

	var lastErr error
	for i := 0; i < breaker.DefaultFailureThreshold; i++ {
		_, lastErr = env.service.PostTaskStore(ctx, "", Trajectory{
			Description: "write after close",
		}, OutcomeSuccess, TaskMetrics{})
		require.Error(t, lastErr)
	}
	assert.Equal(t, breaker.StateOpen, env.breaker.State())

	// The open breaker now rejects before touching the store.
	_, err := env.service.PostTaskStore(ctx, "", Trajectory{
		Description: "rejected fast",
	}, OutcomeSuccess, TaskMetrics{})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	report := env.tracker.Report()
	assert.Equal(t, int64(1), report.Summary.BreakerTrips)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model offline")
}
func (failingEmbedder) Model() string  { return "offline" }
func (failingEmbedder) Dimension() int { return 384 }

func TestStore_EmbeddingFailureWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	svc, err := New(env.store, failingEmbedder{}, env.breaker, nil, zap.NewNop(), Options{})
	require.NoError(t, err)

	_, err = svc.PostTaskStore(ctx, "", Trajectory{Description: "will not embed"}, OutcomeSuccess, TaskMetrics{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)

	// Nothing was persisted and the breaker was not penalized.
	episodes, err := env.store.Candidates(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, episodes)
	assert.Equal(t, 0, env.breaker.Failures())
}

func TestStore_TaskIDRecordedInMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.PostTaskStore(ctx, "task-42", Trajectory{
		Description: "annotate the corpus",
		Domain:      "research",
		Metadata:    map[string]string{"source": "batch"},
	}, OutcomeSuccess, TaskMetrics{Reward: 0.6})
	require.NoError(t, err)

	candidates, err := env.store.Candidates(ctx, "research", 1)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "task-42", candidates[0].Metadata["task_id"])
	assert.Equal(t, "batch", candidates[0].Metadata["source"])
}
