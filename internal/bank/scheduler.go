package bank

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ConsolidationScheduler runs session consolidation in the background.
//
// On each tick it asks the service's session buffers for sessions that
// have been idle longer than the configured window and consolidates
// them. Errors are logged and do not stop the scheduler.
//
// Thread safety: Start and Stop are safe to call concurrently; Start on
// a running scheduler returns an error rather than spawning a second
// goroutine.
type ConsolidationScheduler struct {
	service  *Service
	interval time.Duration
	idle     time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// SchedulerOption configures a ConsolidationScheduler.
type SchedulerOption func(*ConsolidationScheduler)

// WithInterval sets the scan interval. Defaults to 5 minutes.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *ConsolidationScheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSessionIdle sets how long a session must be quiet before it is
// consolidated. Defaults to 30 minutes.
func WithSessionIdle(idle time.Duration) SchedulerOption {
	return func(s *ConsolidationScheduler) {
		if idle > 0 {
			s.idle = idle
		}
	}
}

// NewConsolidationScheduler creates a stopped scheduler; call Start to
// begin scanning.
func NewConsolidationScheduler(service *Service, logger *zap.Logger, opts ...SchedulerOption) (*ConsolidationScheduler, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &ConsolidationScheduler{
		service:  service,
		interval: 5 * time.Minute,
		idle:     30 * time.Minute,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins the background scan loop. Returns an error if already
// running.
func (s *ConsolidationScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info("consolidation scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("session_idle", s.idle))
	go s.run()
	return nil
}

// Stop signals the loop to exit and waits for it. Idempotent.
func (s *ConsolidationScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("consolidation scheduler stopped")
}

// Running reports whether the scan loop is active.
func (s *ConsolidationScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *ConsolidationScheduler) run() {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler panicked",
				zap.Any("panic", r),
				zap.Stack("stack"))
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.consolidateIdle()
		}
	}
}

// consolidateIdle consolidates every session quiet for longer than the
// idle window.
func (s *ConsolidationScheduler) consolidateIdle() {
	cutoff := time.Now().Add(-s.idle)
	for _, sessionID := range s.service.Sessions().IdleSessions(cutoff) {
		report, err := s.service.SessionEndConsolidate(context.Background(), sessionID)
		if err != nil {
			s.logger.Warn("scheduled consolidation failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
			continue
		}
		s.logger.Debug("scheduled consolidation completed",
			zap.String("session_id", sessionID),
			zap.Int("memories", report.MemoriesCreated))
	}
}
