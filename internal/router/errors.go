package router

import "errors"

// Router-specific error types
var (
	ErrMalformedFrame    = errors.New("malformed frame")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)
