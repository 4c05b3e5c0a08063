package ingest

import (
	"time"

	"github.com/okian/scoutcalc/pkg/logger"
)

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(in *Ingester) {
		if l != nil {
			in.log = l
		}
	}
}

// WithClock sets the time source for epoch and readable times.
func WithClock(now func() time.Time) Option {
	return func(in *Ingester) {
		if now != nil {
			in.now = now
		}
	}
}
