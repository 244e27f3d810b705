package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/PostCraft/internal/models"
)

// DefaultSessionIdleTimeout is how long an untouched session is retained.
const DefaultSessionIdleTimeout = 24 * time.Hour

type sessionEntry struct {
	state    State
	lastSeen time.Time
}

// SessionManager keeps composer state per session ID in memory.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	now      func() time.Time
}

// NewSessionManager creates an empty SessionManager.
func NewSessionManager() *SessionManager {
	slog.Debug("Creating SessionManager")
	return &SessionManager{
		sessions: make(map[string]*sessionEntry),
		now:      time.Now,
	}
}

// entry returns the session entry for id, creating it if needed. Caller holds mu.
func (m *SessionManager) entry(id string) *sessionEntry {
	e, ok := m.sessions[id]
	if !ok {
		e = &sessionEntry{}
		m.sessions[id] = e
	}
	e.lastSeen = m.now()
	return e
}

// Get returns a copy of the session state. Unknown sessions yield a zero State.
func (m *SessionManager) Get(id string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return State{}
	}
	e.lastSeen = m.now()
	return e.state.Clone()
}

// SetInput stores composer input without starting a cycle.
func (m *SessionManager) SetInput(id, prompt, platform string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(id)
	e.state.SetInput(prompt, platform)
	return e.state.Clone()
}

// TryBegin stores composer input and marks the session generating when submit
// is enabled. The second result reports whether a cycle was started.
func (m *SessionManager) TryBegin(id, prompt, platform string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(id)
	if e.state.Generating {
		return e.state.Clone(), false
	}
	e.state.SetInput(prompt, platform)
	if !e.state.CanSubmit() {
		return e.state.Clone(), false
	}
	e.state.Begin()
	return e.state.Clone(), true
}

// Finish records the outcome of the session's in-flight cycle.
func (m *SessionManager) Finish(id string, post *models.Post, err error) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(id)
	e.state.Finish(post, err)
	return e.state.Clone()
}

// DismissError clears the toast for a session.
func (m *SessionManager) DismissError(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[id]; ok {
		e.state.Error = ""
	}
}

// Len returns the number of tracked sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than maxIdle and returns how many
// were removed. Sessions with a cycle in flight are kept.
func (m *SessionManager) Sweep(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-maxIdle)
	removed := 0
	for id, e := range m.sessions {
		if e.state.Generating || e.lastSeen.After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	if removed > 0 {
		slog.Debug("SessionManager.Sweep: removed idle sessions", "removed", removed, "remaining", len(m.sessions))
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (m *SessionManager) StartSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Debug("SessionManager sweeper stopped")
				return
			case <-ticker.C:
				m.Sweep(maxIdle)
			}
		}
	}()
}
