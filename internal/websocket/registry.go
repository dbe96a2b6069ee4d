package websocket

import (
	"encoding/json"
	"sync"

	"github.com/samber/lo"
)

// Registry tracks the sockets held by this instance, keyed by session ID
// ARCHITECTURAL DISCOVERY: Pure connection management without matchmaking logic;
// cluster-wide presence lives in the shared store, not here
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection // sessionID -> Connection
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
	}
}

// Register adds a connection; session IDs are unique per socket so a second
// registration for the same ID is rejected
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	sessionID := conn.GetSessionID()
	if sessionID == "" {
		return ErrMissingSessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[sessionID]; exists {
		return ErrDuplicateSession
	}
	r.connections[sessionID] = conn
	return nil
}

// Unregister removes the connection if it is the one registered
// FUNCTIONAL DISCOVERY: Idempotent operation safe for concurrent unregistration
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, exists := r.connections[conn.GetSessionID()]; exists && registered == conn {
		delete(r.connections, conn.GetSessionID())
	}
}

// Get returns the connection for a session with O(1) lookup
func (r *Registry) Get(sessionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[sessionID]
	return conn, exists
}

// Broadcast queues v on every connection and returns how many did not take
// it. It never waits: a connection whose write queue is full misses the frame.
func (r *Registry) Broadcast(v interface{}) int {
	r.mu.RLock()
	targets := lo.Values(r.connections)
	r.mu.RUnlock()

	data, err := json.Marshal(v)
	if err != nil {
		return len(targets)
	}
	failed := lo.Filter(targets, func(conn *Connection, _ int) bool {
		return conn.trySend(data) != nil
	})
	return len(failed)
}

// CloseAll closes every local socket and returns how many were closed.
// Read pumps notice the close and run their own cleanup.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	targets := lo.Values(r.connections)
	r.mu.RUnlock()

	for _, conn := range targets {
		_ = conn.Close()
	}
	return len(targets)
}

// Count returns the number of local connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// GetStats returns registry statistics for monitoring
func (r *Registry) GetStats() map[string]int {
	return map[string]int{
		"total_connections": r.Count(),
	}
}
