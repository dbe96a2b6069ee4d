package store

import (
	"container/list"
	"context"
	"sync"

	"quietlink/pkg/interfaces"
)

// memberSet keeps insertion order so PopAny hands out the longest waiter first
type memberSet struct {
	order *list.List
	index map[string]*list.Element
}

func newMemberSet() *memberSet {
	return &memberSet{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// MemoryStore is a single-process implementation of interfaces.StateStore.
// Every primitive runs under one mutex, which gives it the same atomicity
// as the Redis set commands within one instance.
type MemoryStore struct {
	mu     sync.Mutex
	sets   map[string]*memberSet
	closed bool
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sets: make(map[string]*memberSet),
	}
}

// Add inserts ids into the set; ids already present keep their position
func (m *MemoryStore) Add(ctx context.Context, set string, ids ...string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if set == "" {
		return ErrEmptySetName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	s, ok := m.sets[set]
	if !ok {
		s = newMemberSet()
		m.sets[set] = s
	}
	for _, id := range ids {
		if _, exists := s.index[id]; exists {
			continue
		}
		s.index[id] = s.order.PushBack(id)
	}
	return nil
}

// Remove deletes id from the set and reports whether it was present
func (m *MemoryStore) Remove(ctx context.Context, set, id string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if set == "" {
		return false, ErrEmptySetName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrStoreClosed
	}

	s, ok := m.sets[set]
	if !ok {
		return false, nil
	}
	elem, ok := s.index[id]
	if !ok {
		return false, nil
	}
	s.order.Remove(elem)
	delete(s.index, id)
	return true, nil
}

// PopAny removes and returns the oldest member of the set
func (m *MemoryStore) PopAny(ctx context.Context, set string) (string, bool, error) {
	if ctx.Err() != nil {
		return "", false, ctx.Err()
	}
	if set == "" {
		return "", false, ErrEmptySetName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", false, ErrStoreClosed
	}

	s, ok := m.sets[set]
	if !ok || s.order.Len() == 0 {
		return "", false, nil
	}
	front := s.order.Front()
	id := s.order.Remove(front).(string)
	delete(s.index, id)
	return id, true, nil
}

// Cardinality returns the number of members in the set
func (m *MemoryStore) Cardinality(ctx context.Context, set string) (int64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if set == "" {
		return 0, ErrEmptySetName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	s, ok := m.sets[set]
	if !ok {
		return 0, nil
	}
	return int64(len(s.index)), nil
}

// Contains reports whether id is a member of the set
func (m *MemoryStore) Contains(ctx context.Context, set, id string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if set == "" {
		return false, ErrEmptySetName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrStoreClosed
	}

	s, ok := m.sets[set]
	if !ok {
		return false, nil
	}
	_, ok = s.index[id]
	return ok, nil
}

// Ping reports whether the store is still open
func (m *MemoryStore) Ping(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close drops all sets; further calls return ErrStoreClosed
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.sets = make(map[string]*memberSet)
	return nil
}

var _ interfaces.StateStore = (*MemoryStore)(nil)
