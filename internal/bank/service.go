package bank

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reasoningbank/internal/breaker"
	"github.com/fyrsmithlabs/reasoningbank/internal/embedding"
	"github.com/fyrsmithlabs/reasoningbank/internal/metrics"
	"github.com/fyrsmithlabs/reasoningbank/internal/store"
)

// Options tunes the service. The zero value is completed with defaults
// by New.
type Options struct {
	// Threshold is the minimum cosine similarity for retrieval to accept
	// a match.
	Threshold float64

	// TopK is how many supporting episodes back a returned strategy.
	TopK int

	// CandidateLimit caps how many recent episodes a retrieval scans.
	// 0 means scan everything.
	CandidateLimit int

	// LearningRate is the confidence EMA smoothing factor.
	LearningRate float64
}

// DefaultThreshold is the minimum similarity for a retrieval match.
const DefaultThreshold = 0.30

// DefaultTopK is the default supporting episode count.
const DefaultTopK = 3

// Service is the episodic memory bridge. It owns no goroutines; the
// optional ConsolidationScheduler drives background work.
type Service struct {
	store    *store.Store
	embedder embedding.Embedder
	breaker  *breaker.Breaker
	tracker  *metrics.Tracker
	logger   *zap.Logger
	opts     Options
	sessions *SessionBuffers

	now func() time.Time
}

// New creates a Service. All collaborators are required except tracker,
// which may be nil to disable metrics.
func New(st *store.Store, embedder embedding.Embedder, brk *breaker.Breaker, tracker *metrics.Tracker, logger *zap.Logger, opts Options) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if brk == nil {
		return nil, fmt.Errorf("breaker cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.TopK == 0 {
		opts.TopK = DefaultTopK
	}
	if opts.LearningRate == 0 {
		opts.LearningRate = DefaultLearningRate
	}

	return &Service{
		store:    st,
		embedder: embedder,
		breaker:  brk,
		tracker:  tracker,
		logger:   logger,
		opts:     opts,
		sessions: NewSessionBuffers(0),
		now:      time.Now,
	}, nil
}

// Breaker exposes the shared circuit breaker, mainly for status output.
func (s *Service) Breaker() *breaker.Breaker { return s.breaker }

// Sessions exposes the in-memory session activity buffers.
func (s *Service) Sessions() *SessionBuffers { return s.sessions }
