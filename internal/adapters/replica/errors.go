package replica

import "errors"

// ErrNoURI is returned when the replica is configured without a URI.
var ErrNoURI = errors.New("replica: no uri")
