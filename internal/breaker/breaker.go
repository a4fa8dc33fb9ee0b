// Package breaker implements a three-state circuit breaker guarding access
// to the episodic store.
//
// The breaker is shared process-wide across retrieval and storage call
// sites: both paths hit the same database, so a failing write should gate
// reads as well. State lives only in memory and resets on restart.
//
// State machine:
//   - closed: all operations pass; failures increment a counter.
//   - open: entered when consecutive failures reach the threshold; all
//     operations are short-circuited for the cooldown interval.
//   - half-open: entered when the cooldown elapses; a single probe is
//     admitted. Success closes the breaker, failure re-opens it and
//     restarts the cooldown.
package breaker

import (
	"sync"
	"time"
)

// State is the current gating mode of the breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

const (
	// DefaultFailureThreshold is the consecutive failure count that opens
	// the breaker.
	DefaultFailureThreshold = 5

	// DefaultCooldown is how long the breaker stays open before probing.
	DefaultCooldown = 30 * time.Second
)

// Breaker is a process-wide circuit breaker. Safe for concurrent use.
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	probing   bool

	// now is injectable for tests.
	now func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithThreshold sets the consecutive failure count that opens the breaker.
func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown sets the open-state cooldown interval.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock overrides the time source. Tests use this to advance the
// cooldown without sleeping.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a closed breaker.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		state:     StateClosed,
		threshold: DefaultFailureThreshold,
		cooldown:  DefaultCooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether an operation may proceed. In the open state it
// transitions to half-open once the cooldown has elapsed and admits
// exactly one probe; further callers are blocked until the probe resolves
// via Success or Failure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = StateHalfOpen
			b.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.probing {
			// A probe is already in flight.
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Success records a successful operation. In half-open it closes the
// breaker; in closed it resets the failure counter.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	b.state = StateClosed
}

// Release abandons an admitted operation without recording an outcome.
// Used when the operation failed before reaching the guarded resource
// (e.g. the embedding step), so the breaker learns nothing from it. In
// half-open this frees the probe slot for the next caller.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

// Failure records a failed operation. Returns true when this failure
// tripped the breaker from closed (or half-open) to open, so callers can
// emit a single trip metric per transition.
func (b *Breaker) Failure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		// Probe failed: back to open, restart the cooldown.
		b.state = StateOpen
		b.openedAt = b.now()
		b.probing = false
		return true
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = StateOpen
			b.openedAt = b.now()
			return true
		}
	case StateOpen:
		// Failures while open (e.g. from racing callers) keep it open.
	}
	return false
}

// State returns the current state, applying any pending open → half-open
// transition implied by elapsed time. It does not consume the probe slot.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
