package types

import (
	"encoding/json"
	"time"
)

// Inbound event names (client -> server)
const (
	EventJoinRandom   = "join-random"
	EventCancelFind   = "cancel-find"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice-candidate"
	EventLeaveRoom    = "leave-room"
)

// Outbound event names (server -> client)
const (
	EventMatched    = "matched"
	EventUserCounts = "user-counts"
	EventUserLeft   = "user-left"
	EventError      = "error"
)

// Room event kinds recorded by the ledger
const (
	RoomEventMatched      = "matched"
	RoomEventLeft         = "left"
	RoomEventDisconnected = "disconnected"
)

// Status is the matchmaking state of a session.
// ARCHITECTURAL DISCOVERY: Status decides which shared set the session ID
// belongs to: Waiting -> waiting pool, Chatting -> chatting set, Idle -> neither
type Status int

const (
	StatusIdle Status = iota
	StatusWaiting
	StatusChatting
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusWaiting:
		return "waiting"
	case StatusChatting:
		return "chatting"
	default:
		return "unknown"
	}
}

// Room is the two-party grouping created for one pairing
type Room struct {
	ID        string    `json:"id"`
	Members   [2]string `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRoom creates a room for the requester and its matched candidate
func NewRoom(id, requester, candidate string, createdAt time.Time) *Room {
	return &Room{
		ID:        id,
		Members:   [2]string{requester, candidate},
		CreatedAt: createdAt,
	}
}

// Has reports whether the session is one of the two members
func (r *Room) Has(sessionID string) bool {
	return r.Members[0] == sessionID || r.Members[1] == sessionID
}

// Peer returns the other member of the room
func (r *Room) Peer(sessionID string) (string, bool) {
	switch sessionID {
	case r.Members[0]:
		return r.Members[1], true
	case r.Members[1]:
		return r.Members[0], true
	default:
		return "", false
	}
}

// Envelope is the wire frame used in both directions over the websocket
// FUNCTIONAL DISCOVERY: Data stays raw so signaling payloads pass through untouched
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SignalPayload is the inbound body of offer, answer and ice-candidate events.
// Offer, Answer and Candidate are accepted as aliases of Data.
type SignalPayload struct {
	Room      string          `json:"room" validate:"required,max=128"`
	Data      json.RawMessage `json:"data,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Payload returns the opaque handshake blob carried by the event
func (p *SignalPayload) Payload() json.RawMessage {
	for _, raw := range []json.RawMessage{p.Data, p.Offer, p.Answer, p.Candidate} {
		if len(raw) > 0 {
			return raw
		}
	}
	return nil
}

// LeavePayload is the inbound body of leave-room
type LeavePayload struct {
	Room string `json:"room" validate:"required,max=128"`
}

// MatchedPayload is sent to both members when a pairing is established
type MatchedPayload struct {
	Room      string `json:"room"`
	Initiator bool   `json:"initiator"`
}

// UserLeftPayload tells a session its peer left the room
type UserLeftPayload struct {
	Room string `json:"room"`
}

// UserCounts is the presence snapshot broadcast to every session
type UserCounts struct {
	Idle     int64 `json:"idle"`
	Chatting int64 `json:"chatting"`
}

// ErrorPayload reports a failed inbound event back to its sender
type ErrorPayload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// Delivery is an outbound event addressed to one session, or to every
// session when Target is empty. Deliveries travel over the bus so the
// instance holding the target socket can apply them.
type Delivery struct {
	Target string          `json:"target,omitempty" cbor:"1,keyasint,omitempty"`
	Event  string          `json:"event" cbor:"2,keyasint"`
	Room   string          `json:"room,omitempty" cbor:"3,keyasint,omitempty"`
	Peer   string          `json:"peer,omitempty" cbor:"4,keyasint,omitempty"`
	Data   json.RawMessage `json:"data,omitempty" cbor:"5,keyasint,omitempty"`
}

// IsBroadcast reports whether the delivery targets every session
func (d *Delivery) IsBroadcast() bool {
	return d.Target == ""
}

// Envelope converts the delivery into the frame written to the client
func (d *Delivery) Envelope() *Envelope {
	return &Envelope{Event: d.Event, Data: d.Data}
}

// RoomEvent is one entry of the room ledger
type RoomEvent struct {
	RoomID     string    `json:"room_id" db:"room_id"`
	SessionID  string    `json:"session_id" db:"session_id"`
	PeerID     string    `json:"peer_id" db:"peer_id"`
	Kind       string    `json:"kind" db:"kind"`
	InstanceID string    `json:"instance_id" db:"instance_id"`
	At         time.Time `json:"at" db:"at"`
}

// RoomStats aggregates the ledger by event kind
type RoomStats struct {
	Matched      int64 `json:"matched"`
	Left         int64 `json:"left"`
	Disconnected int64 `json:"disconnected"`
}
