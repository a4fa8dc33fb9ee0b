package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteConfig holds configuration for the remote embedding client.
type RemoteConfig struct {
	// BaseURL is the base URL for the embedding API.
	BaseURL string

	// Model is the embedding model identifier.
	Model string

	// Timeout bounds each embedding request. A timeout is reported as
	// ErrUnavailable, matching the contract that slow model calls feed
	// the circuit breaker rather than hang a transaction.
	Timeout time.Duration
}

// Remote is a client for a text-embeddings-inference style HTTP service.
type Remote struct {
	config RemoteConfig
	client *http.Client
}

// NewRemote creates a remote embedder client.
func NewRemote(config RemoteConfig) (*Remote, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("remote embedder: base URL required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &Remote{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

// teiRequest is the request body for the embed endpoint.
type teiRequest struct {
	Inputs   string `json:"inputs"`
	Truncate bool   `json:"truncate"`
}

// Embed implements Embedder. Any transport failure, timeout, or non-200
// status is reported as ErrUnavailable.
func (r *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrUnavailable)
	}

	body, err := json.Marshal(teiRequest{Inputs: text, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: request timed out", ErrUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	if len(vectors[0]) != Dimension {
		return nil, fmt.Errorf("%w: expected %d dimensions, got %d", ErrUnavailable, Dimension, len(vectors[0]))
	}

	normalize(vectors[0])
	return vectors[0], nil
}

// Model implements Embedder.
func (r *Remote) Model() string { return r.config.Model }

// Dimension implements Embedder.
func (r *Remote) Dimension() int { return Dimension }
