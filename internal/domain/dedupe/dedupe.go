// Package dedupe tracks which QR payloads have already been ingested.
package dedupe

import (
	"context"
	"strings"
	"sync"
)

// Deduper records seen QR payloads so each is stored at most once.
type Deduper interface {
	// SeenAndRecord reports whether data was seen before and records it if
	// not. Surrounding whitespace is not significant.
	SeenAndRecord(ctx context.Context, data string) bool

	// Unrecord forgets data, used when storing it failed.
	Unrecord(ctx context.Context, data string)

	Size() int64
}

type seenSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// New creates an empty deduper, optionally seeded with stored payloads.
func New(opts ...Option) Deduper {
	d := &seenSet{seen: make(map[string]struct{})}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *seenSet) SeenAndRecord(_ context.Context, data string) bool {
	key := strings.TrimSpace(data)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

func (d *seenSet) Unrecord(_ context.Context, data string) {
	d.mu.Lock()
	delete(d.seen, strings.TrimSpace(data))
	d.mu.Unlock()
}

func (d *seenSet) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
