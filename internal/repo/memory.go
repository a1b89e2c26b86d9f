package repo

import (
	"context"
	"sync"

	"github.com/noah-isme/acp-checkout/internal/checkout"
)

// MemorySessions keeps sessions in process memory.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[string]checkout.Session
}

// NewMemorySessions returns an empty store.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]checkout.Session)}
}

func (m *MemorySessions) Put(_ context.Context, s checkout.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions == nil {
		m.sessions = make(map[string]checkout.Session)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemorySessions) Get(_ context.Context, id string) (checkout.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return checkout.Session{}, checkout.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemorySessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len reports the number of stored sessions.
func (m *MemorySessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
