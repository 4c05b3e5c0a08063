package schema

import "errors"

// Sentinel error kinds for schema loading.
var (
	ErrMissingSchema = errors.New("missing schema")
	ErrInvalidSchema = errors.New("invalid schema")
)
