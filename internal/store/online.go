package store

import (
	"context"
	"fmt"

	"quietlink/pkg/interfaces"
)

// OnlineSet implements interfaces.Registry on top of a store set, so that
// every instance can tell whether a session is connected anywhere
type OnlineSet struct {
	store interfaces.StateStore
	set   string
}

// NewOnlineSet tracks connected sessions in the given set
func NewOnlineSet(store interfaces.StateStore, set string) *OnlineSet {
	return &OnlineSet{store: store, set: set}
}

// Track marks a session as connected
func (o *OnlineSet) Track(ctx context.Context, sessionID string) error {
	if err := o.store.Add(ctx, o.set, sessionID); err != nil {
		return fmt.Errorf("track %s: %w", sessionID, err)
	}
	return nil
}

// Untrack removes a session; unknown sessions are ignored
func (o *OnlineSet) Untrack(ctx context.Context, sessionID string) error {
	if _, err := o.store.Remove(ctx, o.set, sessionID); err != nil {
		return fmt.Errorf("untrack %s: %w", sessionID, err)
	}
	return nil
}

// IsConnected reports whether the session is connected to any instance
func (o *OnlineSet) IsConnected(ctx context.Context, sessionID string) (bool, error) {
	return o.store.Contains(ctx, o.set, sessionID)
}

// Count returns the number of connected sessions across the cluster
func (o *OnlineSet) Count(ctx context.Context) (int64, error) {
	return o.store.Cardinality(ctx, o.set)
}

var _ interfaces.Registry = (*OnlineSet)(nil)
