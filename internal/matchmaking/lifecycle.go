package matchmaking

import (
	"context"
	"errors"
	"fmt"

	"quietlink/pkg/types"
)

// Connect registers a new Idle session on this instance and in the
// cluster-wide online set
func (c *Coordinator) Connect(ctx context.Context, sessionID string) error {
	if _, err := c.sessions.Create(sessionID); err != nil {
		return err
	}
	if err := c.registry.Track(ctx, sessionID); err != nil {
		c.sessions.Remove(sessionID)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	c.logger.Debug("session connected", "session", sessionID)
	c.presence.Trigger()
	return nil
}

// Leave ends the session's chat in roomID. Leaving a room the session is
// not in is a no-op.
func (c *Coordinator) Leave(ctx context.Context, sessionID, roomID string) error {
	s, ok := c.sessions.Get(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	room, ok := c.currentRoom(sessionID, roomID)
	if !ok {
		return nil
	}
	peer, _ := room.Peer(sessionID)

	if _, err := c.store.Remove(ctx, c.cfg.ChattingSet, sessionID); err != nil {
		return fmt.Errorf("%w: leave chatting set: %v", ErrStoreUnavailable, err)
	}
	// Symmetric cleanup: the peer may never send its own leave.
	if _, err := c.store.Remove(ctx, c.cfg.ChattingSet, peer); err != nil {
		c.logger.Warn("failed to remove peer from chatting set", "room", roomID, "peer", peer, "error", err)
	}

	if _, ok := s.EndChat(roomID); !ok {
		// The peer's user-left was applied concurrently; it already knows.
		return nil
	}

	c.publishJSON(ctx, peer, sessionID, types.EventUserLeft, roomID, types.UserLeftPayload{Room: roomID})
	c.logger.Info("session left room", "session", sessionID, "room", roomID)
	c.record(types.RoomEventLeft, roomID, sessionID, peer)
	c.presence.Trigger()
	return nil
}

// Disconnect removes every trace of the session. It is idempotent and never
// fails for unknown IDs; cleanup errors are joined, logged and returned.
func (c *Coordinator) Disconnect(ctx context.Context, sessionID string) error {
	var room *types.Room
	if s, ok := c.sessions.Remove(sessionID); ok {
		switch status, current := s.Snapshot(); status {
		case types.StatusChatting:
			room = current
		case types.StatusWaiting:
			// Recorded before touching the store: a pairing may already hold
			// us and its matched delivery can arrive at any point from here on.
			c.departed.add(sessionID, c.now())
		}
	}

	var errs []error
	if err := c.registry.Untrack(ctx, sessionID); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.store.Remove(ctx, c.cfg.WaitingSet, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("leave waiting pool: %w", err))
	}
	removed, err := c.store.Remove(ctx, c.cfg.ChattingSet, sessionID)
	if err != nil {
		errs = append(errs, fmt.Errorf("leave chatting set: %w", err))
	}

	// Only the side that actually removed itself notifies, so the peer gets
	// exactly one user-left even when both sides tear down at once.
	if removed && room != nil {
		peer, _ := room.Peer(sessionID)
		if _, err := c.store.Remove(ctx, c.cfg.ChattingSet, peer); err != nil {
			errs = append(errs, fmt.Errorf("remove peer from chatting set: %w", err))
		}
		c.publishJSON(ctx, peer, sessionID, types.EventUserLeft, room.ID, types.UserLeftPayload{Room: room.ID})
		c.record(types.RoomEventDisconnected, room.ID, sessionID, peer)
	}

	c.presence.Trigger()

	if joined := errors.Join(errs...); joined != nil {
		c.logger.Warn("disconnect cleanup incomplete", "session", sessionID, "error", joined)
		return joined
	}
	c.logger.Debug("session disconnected", "session", sessionID)
	return nil
}

// Apply updates the local target session for a delivery received from the
// bus and reports whether the frame should be written to its socket.
// Broadcasts always pass. Deliveries for sessions held elsewhere, and
// room-scoped deliveries for a room the session has already left, are dropped.
// A matched delivery for a session that disconnected while waiting releases
// the partner it was paired with.
func (c *Coordinator) Apply(d *types.Delivery) bool {
	if d.IsBroadcast() {
		return true
	}
	s, ok := c.sessions.Get(d.Target)
	if !ok {
		if d.Event == types.EventMatched && c.departed.take(d.Target, c.now()) {
			c.releaseAbandoned(d)
		}
		return false
	}

	switch d.Event {
	case types.EventMatched:
		if s.InRoom(d.Room) {
			return true
		}
		if s.Status() == types.StatusChatting {
			c.logger.Warn("dropping match for a session already in another room",
				"session", d.Target, "room", d.Room)
			return false
		}
		s.StartChat(types.NewRoom(d.Room, d.Target, d.Peer, c.now()))
		return true
	case types.EventUserLeft:
		_, ok := s.EndChat(d.Room)
		if ok {
			c.presence.Trigger()
		}
		return ok
	case types.EventOffer, types.EventAnswer, types.EventICECandidate:
		return s.InRoom(d.Room)
	default:
		return true
	}
}

// releaseAbandoned undoes a pairing whose candidate disconnected before its
// matched delivery arrived. The partner gets the user-left the candidate's
// Disconnect could not address. Store calls run off the delivery goroutine.
func (c *Coordinator) releaseAbandoned(d *types.Delivery) {
	departed, peer, roomID := d.Target, d.Peer, d.Room

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LedgerTimeout)
		defer cancel()

		var errs []error
		if _, err := c.store.Remove(ctx, c.cfg.ChattingSet, departed); err != nil {
			errs = append(errs, fmt.Errorf("remove departed session: %w", err))
		}
		if _, err := c.store.Remove(ctx, c.cfg.ChattingSet, peer); err != nil {
			errs = append(errs, fmt.Errorf("remove partner: %w", err))
		}

		c.publishJSON(ctx, peer, departed, types.EventUserLeft, roomID, types.UserLeftPayload{Room: roomID})
		c.logger.Info("released partner of departed session", "session", departed, "peer", peer, "room", roomID)
		c.record(types.RoomEventDisconnected, roomID, departed, peer)
		c.presence.Trigger()

		if joined := errors.Join(errs...); joined != nil {
			c.logger.Warn("abandoned pairing cleanup incomplete", "room", roomID, "error", joined)
		}
	}()
}
