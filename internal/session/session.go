package session

import (
	"sync"
	"time"

	"quietlink/pkg/types"
)

// Session is the matchmaking state of one connected client, owned by the
// instance holding its socket.
// TECHNICAL DISCOVERY: The read goroutine and the hub both mutate a session,
// so every transition goes through the session mutex and checks the current
// state first
type Session struct {
	mu          sync.RWMutex
	id          string
	status      types.Status
	room        *types.Room
	connectedAt time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		id:          id,
		status:      types.StatusIdle,
		connectedAt: now,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// ConnectedAt returns when the session was created
func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

// Status returns the current status
func (s *Session) Status() types.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Room returns the current room, nil unless Chatting
func (s *Session) Room() *types.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

// Snapshot returns status and room under one lock
func (s *Session) Snapshot() (types.Status, *types.Room) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.room
}

// InRoom reports whether the session is chatting in the given room
func (s *Session) InRoom(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status == types.StatusChatting && s.room != nil && s.room.ID == roomID
}

// Transition moves from one non-chatting status to another, failing if the
// session is no longer in the expected status
func (s *Session) Transition(from, to types.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != from || to == types.StatusChatting {
		return false
	}
	s.status = to
	s.room = nil
	return true
}

// StartChat records the room; a session holds at most one room reference
func (s *Session) StartChat(room *types.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = types.StatusChatting
	s.room = room
}

// EndChat returns to Idle if the session is still in roomID and returns the
// room it left
func (s *Session) EndChat(roomID string) (*types.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != types.StatusChatting || s.room == nil || s.room.ID != roomID {
		return nil, false
	}
	room := s.room
	s.status = types.StatusIdle
	s.room = nil
	return room, true
}
