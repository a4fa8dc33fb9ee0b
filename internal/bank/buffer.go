package bank

import (
	"sync"
	"time"
)

// Turn is one task recorded against a session, used to decide when a
// session has gone idle and to enrich consolidation summaries.
type Turn struct {
	Task    string
	Domain  string
	Outcome Outcome
	At      time.Time
}

// SessionBuffers tracks recent activity per session in memory. State is
// process-local and lost on restart; the durable record is the episode
// table. Safe for concurrent use.
type SessionBuffers struct {
	mu       sync.RWMutex
	sessions map[string]*sessionBuffer
	maxTurns int
}

type sessionBuffer struct {
	turns      []Turn
	lastActive time.Time
}

// NewSessionBuffers creates a buffer manager. maxTurns limits turns kept
// per session, oldest dropped first; 0 means unlimited.
func NewSessionBuffers(maxTurns int) *SessionBuffers {
	return &SessionBuffers{
		sessions: make(map[string]*sessionBuffer),
		maxTurns: maxTurns,
	}
}

// Record appends a turn to the session's buffer, creating it if needed.
func (b *SessionBuffers) Record(sessionID string, turn Turn) {
	if sessionID == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.sessions[sessionID]
	if !ok {
		buf = &sessionBuffer{}
		b.sessions[sessionID] = buf
	}
	buf.turns = append(buf.turns, turn)
	if b.maxTurns > 0 && len(buf.turns) > b.maxTurns {
		buf.turns = buf.turns[len(buf.turns)-b.maxTurns:]
	}
	buf.lastActive = turn.At
}

// Turns returns a copy of the session's buffered turns.
func (b *SessionBuffers) Turns(sessionID string) []Turn {
	b.mu.RLock()
	defer b.mu.RUnlock()

	buf, ok := b.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]Turn, len(buf.turns))
	copy(out, buf.turns)
	return out
}

// IdleSessions returns the ids of sessions whose last activity is older
// than the cutoff.
func (b *SessionBuffers) IdleSessions(olderThan time.Time) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []string
	for id, buf := range b.sessions {
		if buf.lastActive.Before(olderThan) {
			out = append(out, id)
		}
	}
	return out
}

// Flush removes and returns the session's buffered turns, called after
// the session has been consolidated.
func (b *SessionBuffers) Flush(sessionID string) []Turn {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(b.sessions, sessionID)
	return buf.turns
}

// Active returns the number of sessions currently buffered.
func (b *SessionBuffers) Active() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}
