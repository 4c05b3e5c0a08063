// Package store is the namespaced document store every stage reads and
// writes, with the change log stages tail to find what changed.
package store

import (
	"context"
)

// Doc is one stored document. Values are JSON-shaped: numbers are float64,
// nested objects are map[string]any.
type Doc = map[string]any

// Query selects documents by field equality. Keys may be dotted paths.
// An empty query selects every document.
type Query = map[string]any

// Op is the kind of a change-log entry.
type Op string

// Change-log operations.
const (
	OpInsert Op = "i"
	OpUpdate Op = "u"
	OpDelete Op = "d"
)

// Change is one change-log entry. Doc holds the post-image for inserts and
// updates, and the removed document for deletes.
type Change struct {
	Timestamp  int64
	Op         Op
	Namespace  string
	Collection string
	Doc        Doc
	Query      Query
}

// WriteKind selects the behaviour of one bulk write operation.
type WriteKind int

// Bulk write kinds.
const (
	// WriteUpsert replaces the first document matching Filter with Doc, or
	// inserts Doc when nothing matches.
	WriteUpsert WriteKind = iota
	WriteInsert
	WriteDelete
)

// WriteOp is one operation of a bulk write.
type WriteOp struct {
	Kind   WriteKind
	Filter Query
	Doc    Doc
}

// Upsert builds a replacing upsert keyed by filter.
func Upsert(filter Query, doc Doc) WriteOp {
	return WriteOp{Kind: WriteUpsert, Filter: filter, Doc: doc}
}

// Delete builds a delete of every document matching filter.
func Delete(filter Query) WriteOp {
	return WriteOp{Kind: WriteDelete, Filter: filter}
}

// TBACacheEntry is one cached TBA response.
type TBACacheEntry struct {
	URL  string
	Data any
	ETag string
}

// Store provides read/write access to the event's collections.
type Store interface {
	// Namespace is the event key that prefixes every collection name.
	Namespace() string

	// Find returns every document of coll matching q, in insertion order.
	Find(ctx context.Context, coll string, q Query) ([]Doc, error)

	// InsertDocuments appends docs to coll.
	InsertDocuments(ctx context.Context, coll string, docs []Doc) error

	// UpdateDocument sets fields on the first document matching key, or
	// inserts key plus fields when none matches.
	UpdateDocument(ctx context.Context, coll string, fields Doc, key Query) error

	// DeleteData removes every document of coll matching q. Raw
	// collections are never deleted from.
	DeleteData(ctx context.Context, coll string, q Query) error

	// BulkWrite applies ops to coll atomically.
	BulkWrite(ctx context.Context, coll string, ops []WriteOp) error

	// GetTBACache returns the cached response for url.
	GetTBACache(ctx context.Context, url string) (TBACacheEntry, bool, error)

	// UpdateTBACache stores a response, writing only when data or etag changed.
	UpdateTBACache(ctx context.Context, url string, data any, etag string) error

	// TailChanges returns every change-log entry with a timestamp after since.
	TailChanges(ctx context.Context, since int64) ([]Change, error)

	Close() error
}

// Collection names used across the pipeline.
const (
	RawQR                = "raw_qr"
	TBACache             = "tba_cache"
	UnconsolidatedObjTIM = "unconsolidated_obj_tim"
	SubjTIM              = "subj_tim"
	ObjTIM               = "obj_tim"
	TBATIM               = "tba_tim"
	ObjTeam              = "obj_team"
	SubjTeam             = "subj_team"
	TBATeam              = "tba_team"
	Pickability          = "pickability"
	PredictedAIM         = "predicted_aim"
	PredictedTeam        = "predicted_team"
	SimPrecision         = "sim_precision"
	ScoutPrecision       = "scout_precision"
)
