package opr

import "errors"

// ErrNoEquations is returned when there is nothing to solve.
var ErrNoEquations = errors.New("opr: no equations")
