package bus

import "errors"

var (
	ErrBusClosed         = errors.New("bus is closed")
	ErrUnknownDriver     = errors.New("unknown bus driver")
	ErrNoHandler         = errors.New("bus handler is required")
	ErrAlreadySubscribed = errors.New("bus already has a subscriber")
	ErrMalformedFrame    = errors.New("malformed delivery frame")
)
