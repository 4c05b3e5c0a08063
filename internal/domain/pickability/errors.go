package pickability

import "errors"

// ErrMissingReference is returned when a referenced collection or field is
// absent for a team.
var ErrMissingReference = errors.New("pickability: missing reference")
