package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashing_Deterministic(t *testing.T) {
	e := NewHashing()
	ctx := context.Background()

	a, err := e.Embed(ctx, "deploy the staging environment")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "deploy the staging environment")
	require.NoError(t, err)

	// Bit-identical, not just approximately equal.
	require.Len(t, a, Dimension)
	assert.Equal(t, a, b)
}

func TestHashing_UnitNorm(t *testing.T) {
	e := NewHashing()

	vec, err := e.Embed(context.Background(), "check the database migration status")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashing_EmptyTextUnavailable(t *testing.T) {
	e := NewHashing()

	_, err := e.Embed(context.Background(), "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHashing_SelfSimilarityIsOne(t *testing.T) {
	e := NewHashing()
	ctx := context.Background()

	a, err := e.Embed(ctx, "retry failed API calls with exponential backoff")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "retry failed API calls with exponential backoff")
	require.NoError(t, err)

	assert.Greater(t, cosine(a, b), 0.99)
}

func TestHashing_RelatedTextsMoreSimilar(t *testing.T) {
	e := NewHashing()
	ctx := context.Background()

	base, err := e.Embed(ctx, "fix the flaky integration test in the payment service")
	require.NoError(t, err)
	related, err := e.Embed(ctx, "fix the broken integration test in the payment service")
	require.NoError(t, err)
	unrelated, err := e.Embed(ctx, "quarterly marketing budget spreadsheet totals")
	require.NoError(t, err)

	simRelated := cosine(base, related)
	simUnrelated := cosine(base, unrelated)
	assert.Greater(t, simRelated, simUnrelated)
	assert.Greater(t, simRelated, 0.5)
}

func TestHashing_Metadata(t *testing.T) {
	e := NewHashing()
	assert.Equal(t, DefaultModel, e.Model())
	assert.Equal(t, Dimension, e.Dimension())
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
