package config

import "errors"

// Configuration error types
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("configuration section is required")
)
