package matchmaking

import "errors"

// Coordinator error types
var (
	ErrAlreadyChatting   = errors.New("session is already chatting")
	ErrUnknownSession    = errors.New("session is not connected to this instance")
	ErrMissingDependency = errors.New("coordinator dependency is missing")
	ErrInvalidConfig     = errors.New("invalid coordinator configuration")
	ErrStoreUnavailable  = errors.New("shared state store unavailable")
	ErrNotSignalEvent    = errors.New("event is not a signaling event")
)
