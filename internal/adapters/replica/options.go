package replica

import (
	"time"

	"github.com/okian/scoutcalc/pkg/logger"
)

// Option applies a configuration option to the Writer.
type Option func(*Writer)

// WithInterval sets the tail period.
func WithInterval(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithRetry sets how many times a write is attempted and the first backoff.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(w *Writer) {
		if attempts > 0 {
			w.attempts = attempts
		}
		if backoff >= 0 {
			w.backoff = backoff
		}
	}
}

// WithWriteTimeout bounds a single sink write.
func WithWriteTimeout(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithLogger sets a custom logger for the writer.
func WithLogger(l logger.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}
