package interfaces

import "context"

// Registry answers which session IDs are connected anywhere in the cluster
type Registry interface {
	// Track marks a session as connected
	Track(ctx context.Context, sessionID string) error

	// Untrack marks a session as gone; unknown IDs are not an error
	Untrack(ctx context.Context, sessionID string) error

	// IsConnected reports whether the session is currently connected
	IsConnected(ctx context.Context, sessionID string) (bool, error)

	// Count returns the total number of connected sessions
	Count(ctx context.Context) (int64, error)
}
