package matchmaking

import (
	"context"
	"encoding/json"

	"quietlink/pkg/types"
)

// Relay forwards an opaque handshake payload to the other member of roomID.
// The payload is never inspected. A sender outside the room is a no-op.
func (c *Coordinator) Relay(ctx context.Context, sessionID, event, roomID string, payload json.RawMessage) error {
	if !types.IsSignalEvent(event) {
		return ErrNotSignalEvent
	}

	room, ok := c.currentRoom(sessionID, roomID)
	if !ok {
		c.logger.Debug("dropping relay outside of room", "session", sessionID, "room", roomID, "event", event)
		return nil
	}
	peer, _ := room.Peer(sessionID)

	c.publish(ctx, &types.Delivery{
		Target: peer,
		Event:  event,
		Room:   roomID,
		Peer:   sessionID,
		Data:   payload,
	})
	return nil
}

// currentRoom returns the session's room when it is chatting in roomID
func (c *Coordinator) currentRoom(sessionID, roomID string) (*types.Room, bool) {
	s, ok := c.sessions.Get(sessionID)
	if !ok {
		return nil, false
	}
	status, room := s.Snapshot()
	if status != types.StatusChatting || room == nil || room.ID != roomID {
		return nil, false
	}
	return room, true
}
