package session

import "errors"

// Session table error types
var (
	ErrInvalidSessionID = errors.New("invalid session ID")
	ErrSessionExists    = errors.New("session already exists")
)
