package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quietlink/pkg/types"
)

// Functional Validation Tests - Manager

func TestManager_CreateGetRemove(t *testing.T) {
	m := NewManager()

	s, err := m.Create("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", s.ID())
	assert.Equal(t, types.StatusIdle, s.Status())
	assert.Nil(t, s.Room())

	got, ok := m.Get("alice")
	require.True(t, ok)
	assert.Same(t, s, got)

	_, err = m.Create("alice")
	assert.ErrorIs(t, err, ErrSessionExists)

	removed, ok := m.Remove("alice")
	require.True(t, ok)
	assert.Same(t, s, removed)

	_, ok = m.Remove("alice")
	assert.False(t, ok, "second remove is a no-op")
	assert.Zero(t, m.Count())
}

func TestManager_CreateRejectsInvalidID(t *testing.T) {
	m := NewManager()

	_, err := m.Create("")
	assert.ErrorIs(t, err, ErrInvalidSessionID)

	_, err = m.Create("has space")
	assert.ErrorIs(t, err, ErrInvalidSessionID)
}

func TestManager_GetStats(t *testing.T) {
	m := NewManager()
	a, _ := m.Create("a")
	b, _ := m.Create("b")
	_, _ = m.Create("c")

	require.True(t, a.Transition(types.StatusIdle, types.StatusWaiting))
	b.StartChat(types.NewRoom("room-1", "b", "x", time.Now()))

	stats := m.GetStats()
	assert.Equal(t, 3, stats["local_sessions"])
	assert.Equal(t, 1, stats["idle"])
	assert.Equal(t, 1, stats["waiting"])
	assert.Equal(t, 1, stats["chatting"])
}

// Functional Validation Tests - Session transitions

func TestSession_Transition(t *testing.T) {
	s := newSession("a", time.Now())

	assert.True(t, s.Transition(types.StatusIdle, types.StatusWaiting))
	assert.False(t, s.Transition(types.StatusIdle, types.StatusWaiting), "stale expected status")
	assert.True(t, s.Transition(types.StatusWaiting, types.StatusIdle))
	assert.False(t, s.Transition(types.StatusIdle, types.StatusChatting), "chatting requires a room")
}

func TestSession_ChatLifecycle(t *testing.T) {
	s := newSession("a", time.Now())
	room := types.NewRoom("room-1", "a", "b", time.Now())

	s.StartChat(room)
	assert.True(t, s.InRoom("room-1"))
	assert.False(t, s.InRoom("room-2"))
	assert.False(t, s.Transition(types.StatusWaiting, types.StatusIdle))

	_, ok := s.EndChat("room-2")
	assert.False(t, ok, "ending a different room leaves state untouched")
	assert.Equal(t, types.StatusChatting, s.Status())

	left, ok := s.EndChat("room-1")
	require.True(t, ok)
	assert.Equal(t, room, left)

	status, current := s.Snapshot()
	assert.Equal(t, types.StatusIdle, status)
	assert.Nil(t, current)
}

// Technical Validation Tests - Concurrency

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a'+i%26)) + string(rune('A'+i/26))
			s, err := m.Create(id)
			if err != nil {
				return
			}
			s.Transition(types.StatusIdle, types.StatusWaiting)
			m.GetStats()
			m.Remove(id)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, m.Count())
}
