package store

import "errors"

var (
	ErrStoreClosed  = errors.New("store is closed")
	ErrEmptySetName = errors.New("set name is required")
	ErrInvalidURL   = errors.New("invalid redis url")
)
