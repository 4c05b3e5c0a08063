package eventdata

import "errors"

var (
	// ErrMissingTeamList is returned when the team list file is absent.
	ErrMissingTeamList = errors.New("eventdata: missing team list")
	// ErrMissingKey is returned when a key file is absent or empty.
	ErrMissingKey = errors.New("eventdata: missing key")
)
