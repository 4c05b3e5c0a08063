package store

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/scoutcalc/internal/schema"
	"github.com/okian/scoutcalc/pkg/logger"
)

// base holds what every backend shares: the collection set, the namespace
// and the change-log clock.
type base struct {
	namespace string
	cols      *schema.Collections
	log       logger.Logger
	now       func() time.Time
	last      int64
}

func newBase(namespace string, cols *schema.Collections, opts []Option) base {
	b := base{namespace: namespace, cols: cols, log: logger.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) Namespace() string { return b.namespace }

// tick returns the next change-log timestamp. Timestamps are strictly
// increasing even when the clock stalls or steps back.
func (b *base) tick() int64 {
	ts := b.now().UnixNano()
	if ts <= b.last {
		ts = b.last + 1
	}
	b.last = ts
	return ts
}

func (b *base) collection(name string) (*schema.Collection, error) {
	c, ok := b.cols.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return c, nil
}

func (b *base) change(op Op, coll string, doc Doc, q Query) Change {
	return Change{
		Timestamp:  b.tick(),
		Op:         op,
		Namespace:  b.namespace + "." + coll,
		Collection: coll,
		Doc:        doc,
		Query:      q,
	}
}

// refuseRawDelete reports whether a delete on c must be skipped.
func (b *base) refuseRawDelete(ctx context.Context, c *schema.Collection) bool {
	if !c.Raw {
		return false
	}
	b.log.Warn(ctx, "refusing to delete from raw collection", logger.String("collection", c.Name))
	return true
}

// unknownBulk logs a bulk write aimed at a collection that does not exist.
func (b *base) unknownBulk(ctx context.Context, coll string, n int) {
	b.log.Warn(ctx, "dropping bulk write to unknown collection",
		logger.String("collection", coll), logger.Int("ops", n))
}

func tbaCacheEntry(d Doc) TBACacheEntry {
	return TBACacheEntry{URL: Str(d, "api_url"), Data: d["data"], ETag: Str(d, "etag")}
}

// sameCache reports whether the stored entry already holds data and etag.
func sameCache(d Doc, data any, etag string) bool {
	if Str(d, "etag") != etag {
		return false
	}
	n, err := Normalize(data)
	return err == nil && equalJSON(d["data"], n)
}
