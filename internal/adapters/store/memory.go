package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/scoutcalc/internal/schema"
	"github.com/okian/scoutcalc/pkg/metrics"
)

// MemoryStore keeps every collection in process memory.
type MemoryStore struct {
	base

	mu      sync.Mutex
	docs    map[string][]Doc
	changes []Change
	closed  bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemory returns an empty in-memory store for the given collections.
func NewMemory(namespace string, cols *schema.Collections, opts ...Option) *MemoryStore {
	return &MemoryStore{
		base: newBase(namespace, cols, opts),
		docs: map[string][]Doc{},
	}
}

func (s *MemoryStore) Find(_ context.Context, coll string, q Query) ([]Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.open(); err != nil {
		return nil, err
	}
	if _, err := s.collection(coll); err != nil {
		return nil, err
	}
	var out []Doc
	for _, d := range s.docs[coll] {
		if Matches(d, q) {
			out = append(out, cloneDoc(d))
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertDocuments(ctx context.Context, coll string, docs []Doc) error {
	ops := make([]WriteOp, len(docs))
	for i, d := range docs {
		ops[i] = WriteOp{Kind: WriteInsert, Doc: d}
	}
	return s.write(ctx, coll, ops, false)
}

func (s *MemoryStore) UpdateDocument(ctx context.Context, coll string, fields Doc, key Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.open(); err != nil {
		return err
	}
	c, err := s.collection(coll)
	if err != nil {
		return err
	}
	fields, err = normalizeDoc(fields)
	if err != nil {
		return err
	}
	docs := s.docs[coll]
	for i, d := range docs {
		if !Matches(d, key) {
			continue
		}
		next := applyFields(d, fields)
		if err := s.checkUnique(c, docs, next, i); err != nil {
			return err
		}
		docs[i] = next
		s.changes = append(s.changes, s.change(OpUpdate, coll, cloneDoc(next), key))
		return nil
	}
	seed, err := normalizeDoc(key)
	if err != nil {
		return err
	}
	next := applyFields(seed, fields)
	if err := s.checkUnique(c, docs, next, -1); err != nil {
		return err
	}
	s.docs[coll] = append(docs, next)
	s.changes = append(s.changes, s.change(OpInsert, coll, cloneDoc(next), key))
	return nil
}

func (s *MemoryStore) DeleteData(ctx context.Context, coll string, q Query) error {
	s.mu.Lock()
	c, err := s.collection(coll)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if s.refuseRawDelete(ctx, c) {
		return nil
	}
	return s.write(ctx, coll, []WriteOp{Delete(q)}, false)
}

func (s *MemoryStore) BulkWrite(ctx context.Context, coll string, ops []WriteOp) error {
	return s.write(ctx, coll, ops, true)
}

// write applies ops to a copy of the collection and commits only when
// every op succeeded.
func (s *MemoryStore) write(ctx context.Context, coll string, ops []WriteOp, bulk bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.open(); err != nil {
		return err
	}
	c, err := s.collection(coll)
	if err != nil {
		if bulk {
			s.unknownBulk(ctx, coll, len(ops))
			return nil
		}
		return err
	}

	docs := append([]Doc(nil), s.docs[coll]...)
	var pending []Change
	for _, op := range ops {
		switch op.Kind {
		case WriteDelete:
			if c.Raw {
				s.refuseRawDelete(ctx, c)
				continue
			}
			kept := docs[:0:0]
			for _, d := range docs {
				if Matches(d, op.Filter) {
					pending = append(pending, s.change(OpDelete, coll, d, op.Filter))
					continue
				}
				kept = append(kept, d)
			}
			docs = kept
		case WriteInsert, WriteUpsert:
			doc, err := normalizeDoc(op.Doc)
			if err != nil {
				return err
			}
			at := -1
			if op.Kind == WriteUpsert {
				for i, d := range docs {
					if Matches(d, op.Filter) {
						at = i
						break
					}
				}
				filter, err := normalizeDoc(op.Filter)
				if err != nil {
					return err
				}
				doc = applyFields(filter, doc)
			}
			if err := s.checkUnique(c, docs, doc, at); err != nil {
				return err
			}
			if at >= 0 {
				docs[at] = doc
				pending = append(pending, s.change(OpUpdate, coll, cloneDoc(doc), op.Filter))
				continue
			}
			docs = append(docs, doc)
			pending = append(pending, s.change(OpInsert, coll, cloneDoc(doc), nil))
		default:
			return fmt.Errorf("unknown write kind %d", op.Kind)
		}
	}
	s.docs[coll] = docs
	s.changes = append(s.changes, pending...)
	metrics.UpdateChangeLogEntries(len(s.changes))
	return nil
}

// checkUnique rejects doc when another document (other than index skip)
// shares a unique index key with it.
func (s *MemoryStore) checkUnique(c *schema.Collection, docs []Doc, doc Doc, skip int) error {
	for _, idx := range c.Indexes {
		if !idx.Unique {
			continue
		}
		key := keyOf(doc, idx.Fields)
		for i, other := range docs {
			if i != skip && keyOf(other, idx.Fields) == key {
				return fmt.Errorf("%w: %s %v = %s", ErrDuplicateKey, c.Name, idx.Fields, key)
			}
		}
	}
	return nil
}

func (s *MemoryStore) GetTBACache(ctx context.Context, url string) (TBACacheEntry, bool, error) {
	docs, err := s.Find(ctx, TBACache, Query{"api_url": url})
	if err != nil || len(docs) == 0 {
		return TBACacheEntry{}, false, err
	}
	return tbaCacheEntry(docs[0]), true, nil
}

func (s *MemoryStore) UpdateTBACache(ctx context.Context, url string, data any, etag string) error {
	docs, err := s.Find(ctx, TBACache, Query{"api_url": url})
	if err != nil {
		return err
	}
	if len(docs) > 0 && sameCache(docs[0], data, etag) {
		return nil
	}
	return s.UpdateDocument(ctx, TBACache, Doc{"data": data, "etag": etag}, Query{"api_url": url})
}

func (s *MemoryStore) TailChanges(_ context.Context, since int64) ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.open(); err != nil {
		return nil, err
	}
	i := sort.Search(len(s.changes), func(i int) bool { return s.changes[i].Timestamp > since })
	out := make([]Change, len(s.changes)-i)
	copy(out, s.changes[i:])
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) open() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}
