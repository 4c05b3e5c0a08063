package qr

import "errors"

// Sentinel error kinds for the codec. Decompression failures wrap one of these.
var (
	ErrMalformed      = errors.New("malformed qr")
	ErrSchemaMismatch = errors.New("qr schema version mismatch")
)
