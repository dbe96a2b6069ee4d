package interfaces

import (
	"context"

	"quietlink/pkg/types"
)

// Ledger persists room lifecycle events for operational statistics
// ARCHITECTURAL DISCOVERY: Only pairing metadata is stored, never chat content
type Ledger interface {
	// RecordRoomEvent appends one room event
	RecordRoomEvent(ctx context.Context, event *types.RoomEvent) error

	// RoomStats aggregates recorded events by kind
	RoomStats(ctx context.Context) (*types.RoomStats, error)

	// HealthCheck verifies database connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close closes the database connection and cleans up resources
	Close() error
}
