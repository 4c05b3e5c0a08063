package tba

import "errors"

var (
	// ErrUnavailable is returned when TBA cannot be reached.
	ErrUnavailable = errors.New("tba: unavailable")
	// ErrUnexpectedStatus is returned for responses other than 200 and 304.
	ErrUnexpectedStatus = errors.New("tba: unexpected status")
)
