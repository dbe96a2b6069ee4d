package interfaces

import "context"

// StateStore is the set-semantics shared state used for matchmaking.
// TECHNICAL DISCOVERY: Every method is a single atomic primitive; callers never
// compose check-then-act sequences against a set
type StateStore interface {
	// Add inserts ids into the named set in one atomic operation
	Add(ctx context.Context, set string, ids ...string) error

	// Remove deletes id from the set and reports whether it was present
	Remove(ctx context.Context, set, id string) (bool, error)

	// PopAny removes and returns an arbitrary member; ok is false when the set is empty.
	// At most one caller, in any process, receives a given member.
	PopAny(ctx context.Context, set string) (id string, ok bool, err error)

	// Cardinality returns the number of members in the set
	Cardinality(ctx context.Context, set string) (int64, error)

	// Contains reports whether id is a member of the set
	Contains(ctx context.Context, set, id string) (bool, error)

	// Ping verifies the backend is reachable
	Ping(ctx context.Context) error

	// Close releases the backend
	Close() error
}
