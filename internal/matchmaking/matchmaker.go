package matchmaking

import (
	"context"
	"fmt"

	"quietlink/internal/metrics"
	"quietlink/internal/session"
	"quietlink/pkg/types"
)

// Join puts the session into matchmaking: it pairs with a valid waiting
// partner when one exists, otherwise it joins the waiting pool
func (c *Coordinator) Join(ctx context.Context, sessionID string) error {
	s, ok := c.sessions.Get(sessionID)
	if !ok {
		return ErrUnknownSession
	}

	switch s.Status() {
	case types.StatusChatting:
		return ErrAlreadyChatting
	case types.StatusWaiting:
		removed, err := c.store.Remove(ctx, c.cfg.WaitingSet, sessionID)
		if err != nil {
			return fmt.Errorf("%w: leave waiting pool: %v", ErrStoreUnavailable, err)
		}
		if !removed {
			// Another join already popped us; its matched delivery is in flight.
			c.logger.Debug("join raced with a concurrent pairing", "session", sessionID)
			return nil
		}
		if !s.Transition(types.StatusWaiting, types.StatusIdle) {
			return nil
		}
	}

	candidate, found, err := c.popValidPartner(ctx, sessionID)
	if err != nil {
		return err
	}
	if !found {
		return c.enqueue(ctx, s)
	}
	return c.pair(ctx, s, candidate)
}

// CancelFind withdraws a waiting session from the pool. When the session is
// no longer in the pool the cancel lost a race with a pairing and the
// matched delivery wins.
func (c *Coordinator) CancelFind(ctx context.Context, sessionID string) error {
	s, ok := c.sessions.Get(sessionID)
	if !ok {
		return ErrUnknownSession
	}

	removed, err := c.store.Remove(ctx, c.cfg.WaitingSet, sessionID)
	if err != nil {
		return fmt.Errorf("%w: cancel find: %v", ErrStoreUnavailable, err)
	}
	if removed {
		s.Transition(types.StatusWaiting, types.StatusIdle)
		c.presence.Trigger()
	}
	return nil
}

// popValidPartner pops up to MaxPopAttempts entries and returns the first one
// that is connected and not the requester. Discarded entries are consumed.
func (c *Coordinator) popValidPartner(ctx context.Context, sessionID string) (string, bool, error) {
	for attempt := 0; attempt < c.cfg.MaxPopAttempts; attempt++ {
		candidate, ok, err := c.store.PopAny(ctx, c.cfg.WaitingSet)
		if err != nil {
			return "", false, fmt.Errorf("%w: pop waiting pool: %v", ErrStoreUnavailable, err)
		}
		if !ok {
			return "", false, nil
		}
		if candidate == sessionID {
			c.metrics.CandidateDiscarded(metrics.DiscardSelf)
			continue
		}

		connected, err := c.registry.IsConnected(ctx, candidate)
		if err != nil {
			c.restoreCandidate(ctx, candidate)
			return "", false, fmt.Errorf("%w: check candidate: %v", ErrStoreUnavailable, err)
		}
		if connected {
			return candidate, true, nil
		}

		c.metrics.CandidateDiscarded(metrics.DiscardStale)
		c.logger.Debug("discarded stale waiting entry", "session", sessionID, "candidate", candidate)
	}
	return "", false, nil
}

func (c *Coordinator) enqueue(ctx context.Context, s *session.Session) error {
	// Status first so a pairing that pops us right after the add is not
	// overwritten by a late Waiting transition.
	if !s.Transition(types.StatusIdle, types.StatusWaiting) {
		return nil
	}
	if err := c.store.Add(ctx, c.cfg.WaitingSet, s.ID()); err != nil {
		s.Transition(types.StatusWaiting, types.StatusIdle)
		return fmt.Errorf("%w: join waiting pool: %v", ErrStoreUnavailable, err)
	}

	c.logger.Debug("session waiting for a partner", "session", s.ID())
	c.presence.Trigger()
	return nil
}

func (c *Coordinator) pair(ctx context.Context, s *session.Session, candidate string) error {
	room := types.NewRoom(c.newRoomID(), s.ID(), candidate, c.now())

	if err := c.store.Add(ctx, c.cfg.ChattingSet, s.ID(), candidate); err != nil {
		c.restoreCandidate(ctx, candidate)
		return fmt.Errorf("%w: enter chatting set: %v", ErrStoreUnavailable, err)
	}
	s.StartChat(room)

	c.publishJSON(ctx, s.ID(), candidate, types.EventMatched, room.ID,
		types.MatchedPayload{Room: room.ID, Initiator: true})
	c.publishJSON(ctx, candidate, s.ID(), types.EventMatched, room.ID,
		types.MatchedPayload{Room: room.ID, Initiator: false})

	c.logger.Info("sessions matched", "room", room.ID, "initiator", s.ID(), "peer", candidate)
	c.metrics.MatchCreated()
	c.record(types.RoomEventMatched, room.ID, s.ID(), candidate)
	c.presence.Trigger()
	return nil
}

// restoreCandidate puts a popped, still-valid candidate back in the pool
func (c *Coordinator) restoreCandidate(ctx context.Context, candidate string) {
	if err := c.store.Add(ctx, c.cfg.WaitingSet, candidate); err != nil {
		c.logger.Warn("failed to restore candidate to waiting pool", "candidate", candidate, "error", err)
	}
}
