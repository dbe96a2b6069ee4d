package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidSessionID  = errors.New("session ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidPayload    = errors.New("invalid event payload")
	ErrMissingRoom       = errors.New("room is required")
	ErrMissingSignalData = errors.New("signaling payload is empty")
	ErrPayloadTooLarge   = errors.New("signaling payload exceeds 64KB limit")
	ErrInvalidRoomEvent  = errors.New("invalid room event")
)
