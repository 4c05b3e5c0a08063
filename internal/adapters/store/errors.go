package store

import "errors"

// Sentinel kinds for store errors.
var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrClosed            = errors.New("store closed")
)
