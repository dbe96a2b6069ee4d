package interfaces

// Connection represents one client socket held by this instance
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// keeps delivery code independent of the websocket library
type Connection interface {
	// WriteJSON sends a JSON frame to the client (thread-safe)
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error

	// GetSessionID returns the session ID assigned at upgrade
	GetSessionID() string
}
