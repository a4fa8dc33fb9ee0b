package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Dimension is the embedding vector length. Matches all-MiniLM-L6-v2 so
// stored vectors stay compatible with a model-backed deployment.
const Dimension = 384

// DefaultModel is the model name recorded alongside stored embeddings.
const DefaultModel = "all-MiniLM-L6-v2"

// ErrUnavailable indicates the embedding computation failed. Nothing is
// cached or stored when this is returned.
var ErrUnavailable = errors.New("embedding unavailable")

// Embedder computes a fixed-length L2-normalized vector for a text.
type Embedder interface {
	// Embed returns the vector for text. The result is deterministic for
	// byte-identical input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model is the identifier recorded with stored embeddings.
	Model() string

	// Dimension is the vector length.
	Dimension() int
}

// Hashing is a deterministic local embedder using token feature hashing.
//
// Each word unigram and bigram is hashed into a bucket with a sign bit;
// the resulting sparse count vector is L2-normalized. Texts that share
// vocabulary overlap in the same buckets, which gives meaningful cosine
// similarity for rephrasings of the same task without any model assets.
type Hashing struct {
	model string
	dim   int
}

// NewHashing creates the default deterministic embedder.
func NewHashing() *Hashing {
	return &Hashing{model: DefaultModel, dim: Dimension}
}

// Embed implements Embedder. It never fails for non-empty input.
func (h *Hashing) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrUnavailable
	}

	vec := make([]float32, h.dim)
	tokens := tokenize(text)
	for i, tok := range tokens {
		addFeature(vec, tok)
		if i+1 < len(tokens) {
			addFeature(vec, tok+" "+tokens[i+1])
		}
	}
	normalize(vec)
	return vec, nil
}

// Model implements Embedder.
func (h *Hashing) Model() string { return h.model }

// Dimension implements Embedder.
func (h *Hashing) Dimension() int { return h.dim }

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// addFeature hashes a token into a bucket with a sign derived from the
// same hash, the standard feature-hashing trick to keep collisions
// unbiased.
func addFeature(vec []float32, token string) {
	h := fnv.New64a()
	h.Write([]byte(token))
	sum := h.Sum64()

	bucket := int(sum % uint64(len(vec)))
	if (sum>>63)&1 == 1 {
		vec[bucket] -= 1
	} else {
		vec[bucket] += 1
	}
}

// normalize scales vec to unit L2 norm in place.
func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := 1 / math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
}
