package store

import (
	"time"

	"github.com/okian/scoutcalc/pkg/logger"
)

// Option configures a store backend.
type Option func(*base)

// WithLogger sets the logger used for dropped writes.
func WithLogger(l logger.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.log = l
		}
	}
}

// WithClock replaces the wall clock used for change-log timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}
