// Package embedding provides text embedding for episodic memory retrieval.
//
// An Embedder turns text into a fixed-length L2-normalized vector used for
// cosine similarity ranking. Two implementations are provided:
//
//   - Hashing: a deterministic local feature-hashing embedder. Identical
//     input text always yields a bit-identical vector, and texts sharing
//     vocabulary produce proportionally similar vectors. It needs no model
//     assets and is the default.
//   - Remote: a client for a text-embeddings-inference style HTTP service,
//     for deployments with a real sentence-transformer model.
//
// Cache wraps any Embedder with an exact-match text cache. A cache hit
// returns a vector observably equal to the first computation for that
// text. Embedding failures surface as ErrUnavailable and cache nothing.
package embedding
