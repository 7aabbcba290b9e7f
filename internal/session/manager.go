package session

import (
	"context"
	"sync"
)

// Manager keeps one coordinator per open session and forgets it once it
// is torn down.
type Manager struct {
	deps Deps
	opts Options

	mu       sync.Mutex
	sessions map[int64]*Coordinator
}

func NewManager(deps Deps, opts Options) *Manager {
	return &Manager{deps: deps, opts: opts, sessions: make(map[int64]*Coordinator)}
}

// Open returns the coordinator of sessionID, creating and initializing it
// on first use. The returned coordinator is non-nil whenever it was
// created, even if initialization failed.
func (m *Manager) Open(ctx context.Context, sessionID, userID int64) (*Coordinator, error) {
	if sessionID <= 0 {
		return nil, ErrMissingIdentifier
	}

	m.mu.Lock()
	if c, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		if c.Owner() != userID {
			return nil, ErrUnauthorized
		}
		return c, nil
	}
	c := New(sessionID, userID, m.deps, m.opts)
	m.sessions[sessionID] = c
	m.mu.Unlock()

	if m.deps.Metrics != nil {
		m.deps.Metrics.ActiveSessions.Inc()
	}
	go m.forget(c)

	return c, c.Initialize(ctx)
}

func (m *Manager) forget(c *Coordinator) {
	<-c.Done()
	m.mu.Lock()
	if m.sessions[c.ID()] == c {
		delete(m.sessions, c.ID())
	}
	m.mu.Unlock()
	if m.deps.Metrics != nil {
		m.deps.Metrics.ActiveSessions.Dec()
	}
}

func (m *Manager) Get(sessionID int64) (*Coordinator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[sessionID]
	return c, ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close disposes every open coordinator.
func (m *Manager) Close() {
	m.mu.Lock()
	open := make([]*Coordinator, 0, len(m.sessions))
	for _, c := range m.sessions {
		open = append(open, c)
	}
	m.mu.Unlock()
	for _, c := range open {
		c.Dispose()
	}
}
