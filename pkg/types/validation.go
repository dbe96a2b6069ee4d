package types

import (
	"encoding/json"
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// MaxSignalPayloadSize bounds a relayed handshake blob
const MaxSignalPayloadSize = 64 * 1024

// FUNCTIONAL DISCOVERY: Regex and validator compiled once at package initialization
var (
	sessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	validate       = validator.New(validator.WithRequiredStructEnabled())
)

// IsValidSessionID checks if a session ID meets format requirements
func IsValidSessionID(sessionID string) bool {
	if len(sessionID) < 1 || len(sessionID) > 64 {
		return false
	}
	return sessionIDRegex.MatchString(sessionID)
}

// IsSignalEvent reports whether the event is relayed between room members
func IsSignalEvent(event string) bool {
	switch event {
	case EventOffer, EventAnswer, EventICECandidate:
		return true
	default:
		return false
	}
}

// IsInboundEvent checks if the event is one a client may send
func IsInboundEvent(event string) bool {
	switch event {
	case EventJoinRandom, EventCancelFind, EventLeaveRoom:
		return true
	default:
		return IsSignalEvent(event)
	}
}

// DecodeSignal parses and validates the body of a signaling event
func DecodeSignal(data json.RawMessage) (*SignalPayload, error) {
	var payload SignalPayload
	if err := decodeStrict(data, &payload); err != nil {
		return nil, err
	}
	raw := payload.Payload()
	if len(raw) == 0 {
		return nil, ErrMissingSignalData
	}
	if len(raw) > MaxSignalPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	return &payload, nil
}

// DecodeLeave parses and validates the body of leave-room
func DecodeLeave(data json.RawMessage) (*LeavePayload, error) {
	var payload LeavePayload
	if err := decodeStrict(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Validate ensures a ledger entry is complete before it is persisted
func (e *RoomEvent) Validate() error {
	if e.RoomID == "" || e.SessionID == "" || e.At.IsZero() {
		return ErrInvalidRoomEvent
	}
	switch e.Kind {
	case RoomEventMatched, RoomEventLeft, RoomEventDisconnected:
		return nil
	default:
		return ErrInvalidRoomEvent
	}
}

func decodeStrict(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return ErrMissingRoom
	}
	if err := json.Unmarshal(data, v); err != nil {
		return ErrInvalidPayload
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "required" {
			return ErrMissingRoom
		}
		return ErrInvalidPayload
	}
	return nil
}
