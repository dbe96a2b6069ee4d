package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"

	"quietlink/pkg/types"
)

// Manager is the per-instance table of live sessions
type Manager struct {
	sessions map[string]*Session // sessionID -> Session
	mu       sync.RWMutex
	now      func() time.Time
}

// NewManager creates an empty session table
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create registers a new Idle session
func (m *Manager) Create(sessionID string) (*Session, error) {
	if !types.IsValidSessionID(sessionID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sessionID]; exists {
		return nil, ErrSessionExists
	}

	s := newSession(sessionID, m.now())
	m.sessions[sessionID] = s
	return s, nil
}

// Get returns the session if this instance holds it
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	return s, ok
}

// Remove deletes the session and returns it; unknown IDs return false
func (m *Manager) Remove(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	return s, ok
}

// Count returns the number of local sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetStats returns local session statistics by status
func (m *Manager) GetStats() map[string]interface{} {
	m.mu.RLock()
	all := lo.Values(m.sessions)
	m.mu.RUnlock()

	byStatus := lo.CountValuesBy(all, func(s *Session) types.Status {
		return s.Status()
	})

	return map[string]interface{}{
		"local_sessions": len(all),
		"idle":           byStatus[types.StatusIdle],
		"waiting":        byStatus[types.StatusWaiting],
		"chatting":       byStatus[types.StatusChatting],
	}
}
