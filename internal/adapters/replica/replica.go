// Package replica mirrors the local change log to a remote document store.
// The mirror is eventually consistent: a failed batch is retried on the
// next tick from the same change-log position.
package replica

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/schema"
	"github.com/okian/scoutcalc/pkg/logger"
	"github.com/okian/scoutcalc/pkg/metrics"
)

// Default writer configuration.
const (
	defaultInterval     = 5 * time.Second
	defaultAttempts     = 3
	defaultBackoff      = 200 * time.Millisecond
	defaultWriteTimeout = 10 * time.Second
)

// OpKind is the remote operation a change maps to.
type OpKind int

// Remote operations.
const (
	OpReplace OpKind = iota
	OpInsert
	OpDelete
)

// Op is one remote write. Replace upserts Doc at Filter; Delete removes
// every document matching Filter.
type Op struct {
	Kind   OpKind
	Filter store.Query
	Doc    store.Doc
}

// Sink applies ordered writes to one remote collection.
type Sink interface {
	Write(ctx context.Context, coll string, ops []Op) error
	Close(ctx context.Context) error
}

// Source is the change log the writer tails.
type Source interface {
	TailChanges(ctx context.Context, since int64) ([]store.Change, error)
}

// Writer tails the change log and forwards each change to a Sink.
type Writer struct {
	src  Source
	sink Sink
	cols *schema.Collections

	interval time.Duration
	attempts int
	backoff  time.Duration
	timeout  time.Duration

	// last is the newest change already mirrored.
	last int64

	logger logger.Logger
}

// New creates a Writer. cols supplies the unique keys used to address
// mirrored documents.
func New(src Source, sink Sink, cols *schema.Collections, opts ...Option) *Writer {
	w := &Writer{
		src:      src,
		sink:     sink,
		cols:     cols,
		interval: defaultInterval,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		timeout:  defaultWriteTimeout,
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run mirrors on every tick until ctx is done. Failures are logged and
// never end the loop.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.Sync(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn(ctx, "replica sync incomplete, retrying next tick", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sync mirrors every change since the last successful one and returns how
// many were written. Changes after a failing batch stay pending.
func (w *Writer) Sync(ctx context.Context) (int, error) {
	changes, err := w.src.TailChanges(ctx, w.last)
	if err != nil {
		return 0, fmt.Errorf("tail changes: %w", err)
	}
	if len(changes) == 0 {
		metrics.UpdateReplicaPending(0)
		return 0, nil
	}

	id := uuid.NewString()
	log := w.logger.With(logger.String("batch", id))
	written := 0
	for _, run := range runs(changes) {
		coll := run[0].Collection
		ops := make([]Op, 0, len(run))
		for _, ch := range run {
			if op, ok := w.translate(ch); ok {
				ops = append(ops, op)
			}
		}
		if len(ops) > 0 {
			if err := w.write(ctx, log, coll, ops); err != nil {
				metrics.RecordReplicaError()
				metrics.UpdateReplicaPending(len(changes) - written)
				return written, fmt.Errorf("mirror %s: %w", coll, err)
			}
		}
		written += len(run)
		w.last = run[len(run)-1].Timestamp
		metrics.RecordReplicaMirrored(len(run))
	}
	metrics.UpdateReplicaPending(0)
	log.Debug(ctx, "replica batch mirrored", logger.Int("changes", written))
	return written, nil
}

// write retries a run with doubling backoff.
func (w *Writer) write(ctx context.Context, log logger.Logger, coll string, ops []Op) error {
	wait := w.backoff
	var err error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		wctx, cancel := context.WithTimeout(ctx, w.timeout)
		err = w.sink.Write(wctx, coll, ops)
		cancel()
		if err == nil {
			return nil
		}
		log.Warn(ctx, "replica write failed",
			logger.String("collection", coll),
			logger.Int("attempt", attempt),
			logger.Error(err))
		if attempt == w.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}

// translate maps a change onto the remote write that reproduces it.
func (w *Writer) translate(ch store.Change) (Op, bool) {
	var key []string
	if c, ok := w.cols.Get(ch.Collection); ok {
		key = c.UniqueKey()
	}
	switch ch.Op {
	case store.OpInsert, store.OpUpdate:
		if f, ok := keyFilter(ch.Doc, key); ok {
			return Op{Kind: OpReplace, Filter: f, Doc: ch.Doc}, true
		}
		if ch.Op == store.OpUpdate && len(ch.Query) > 0 {
			return Op{Kind: OpReplace, Filter: ch.Query, Doc: ch.Doc}, true
		}
		return Op{Kind: OpInsert, Doc: ch.Doc}, true
	case store.OpDelete:
		if f, ok := keyFilter(ch.Doc, key); ok {
			return Op{Kind: OpDelete, Filter: f}, true
		}
		if len(ch.Query) > 0 {
			return Op{Kind: OpDelete, Filter: ch.Query}, true
		}
	}
	w.logger.Warn(context.Background(), "unmirrorable change skipped",
		logger.String("collection", ch.Collection), logger.String("op", string(ch.Op)))
	return Op{}, false
}

func keyFilter(d store.Doc, key []string) (store.Query, bool) {
	if len(key) == 0 || d == nil {
		return nil, false
	}
	f := make(store.Query, len(key))
	for _, k := range key {
		v, ok := store.Get(d, k)
		if !ok {
			return nil, false
		}
		f[k] = v
	}
	return f, true
}

// runs splits changes into consecutive same-collection groups so the
// remote apply order matches the log.
func runs(changes []store.Change) [][]store.Change {
	var out [][]store.Change
	start := 0
	for i := 1; i <= len(changes); i++ {
		if i == len(changes) || changes[i].Collection != changes[start].Collection {
			out = append(out, changes[start:i])
			start = i
		}
	}
	return out
}

// Close releases the sink.
func (w *Writer) Close(ctx context.Context) error {
	return w.sink.Close(ctx)
}
