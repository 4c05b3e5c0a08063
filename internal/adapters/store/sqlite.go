package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/okian/scoutcalc/internal/schema"
	"github.com/okian/scoutcalc/pkg/metrics"
)

// SQLiteStore keeps documents as JSON rows in one SQLite table, with the
// collection schema's unique indexes applied as partial expression indexes.
type SQLiteStore struct {
	base

	mu sync.Mutex
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens (or creates) the database at path and applies the
// collection indexes.
func NewSQLite(ctx context.Context, path, namespace string, cols *schema.Collections, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, err
	}
	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{base: newBase(namespace, cols, opts), db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	var last sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(ts) FROM changes`).Scan(&last); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.last = last.Int64
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection)`,
		`CREATE TABLE IF NOT EXISTS changes (
			ts INTEGER PRIMARY KEY,
			op TEXT NOT NULL,
			namespace TEXT NOT NULL,
			collection TEXT NOT NULL,
			doc TEXT NOT NULL,
			query TEXT
		)`,
	}
	for _, c := range s.cols.List {
		for i, idx := range c.Indexes {
			exprs := make([]string, len(idx.Fields))
			for j, f := range idx.Fields {
				exprs[j] = "json_extract(body, " + quote(jsonPath(f)) + ")"
			}
			kind := "INDEX"
			if idx.Unique {
				kind = "UNIQUE INDEX"
			}
			stmts = append(stmts, fmt.Sprintf("CREATE %s IF NOT EXISTS idx_%s_%d ON documents(%s) WHERE collection = %s",
				kind, c.Name, i, strings.Join(exprs, ", "), quote(c.Name)))
		}
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

type row struct {
	id  int64
	doc Doc
}

// rows loads the documents of coll matching q. Scalar equalities are
// pushed into SQL; the full query is re-checked in Go.
func (s *SQLiteStore) rows(ctx context.Context, q queryer, coll string, query Query) ([]row, error) {
	where := []string{"collection = ?"}
	args := []any{coll}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		expr := "json_extract(body, " + quote(jsonPath(k)) + ")"
		switch v := query[k].(type) {
		case nil:
			where = append(where, expr+" IS NULL")
		case string, bool, float64, int, int64:
			where = append(where, expr+" = ?")
			args = append(args, v)
		}
	}
	rs, err := q.QueryContext(ctx, "SELECT id, body FROM documents WHERE "+strings.Join(where, " AND ")+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []row
	for rs.Next() {
		var (
			id   int64
			body string
		)
		if err := rs.Scan(&id, &body); err != nil {
			return nil, err
		}
		var d Doc
		if err := json.Unmarshal([]byte(body), &d); err != nil {
			return nil, fmt.Errorf("decode document %d: %w", id, err)
		}
		if Matches(d, query) {
			out = append(out, row{id: id, doc: d})
		}
	}
	return out, rs.Err()
}

func (s *SQLiteStore) Find(ctx context.Context, coll string, q Query) ([]Doc, error) {
	if _, err := s.collection(coll); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { metrics.RecordStoreOperation("find", coll, float64(time.Since(start).Milliseconds())) }()

	rs, err := s.rows(ctx, s.db, coll, q)
	if err != nil {
		return nil, err
	}
	out := make([]Doc, len(rs))
	for i, r := range rs {
		out[i] = r.doc
	}
	return out, nil
}

func (s *SQLiteStore) InsertDocuments(ctx context.Context, coll string, docs []Doc) error {
	ops := make([]WriteOp, len(docs))
	for i, d := range docs {
		ops[i] = WriteOp{Kind: WriteInsert, Doc: d}
	}
	if _, err := s.collection(coll); err != nil {
		return err
	}
	return s.BulkWrite(ctx, coll, ops)
}

func (s *SQLiteStore) UpdateDocument(ctx context.Context, coll string, fields Doc, key Query) error {
	if _, err := s.collection(coll); err != nil {
		return err
	}
	fields, err := normalizeDoc(fields)
	if err != nil {
		return err
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		rs, err := s.rows(ctx, tx, coll, key)
		if err != nil {
			return err
		}
		if len(rs) > 0 {
			next := applyFields(rs[0].doc, fields)
			if err := s.replace(ctx, tx, rs[0].id, next); err != nil {
				return err
			}
			return s.record(ctx, tx, s.change(OpUpdate, coll, next, key))
		}
		seed, err := normalizeDoc(key)
		if err != nil {
			return err
		}
		next := applyFields(seed, fields)
		if err := s.insert(ctx, tx, coll, next); err != nil {
			return err
		}
		return s.record(ctx, tx, s.change(OpInsert, coll, next, key))
	})
}

func (s *SQLiteStore) DeleteData(ctx context.Context, coll string, q Query) error {
	c, err := s.collection(coll)
	if err != nil {
		return err
	}
	if s.refuseRawDelete(ctx, c) {
		return nil
	}
	return s.BulkWrite(ctx, coll, []WriteOp{Delete(q)})
}

func (s *SQLiteStore) BulkWrite(ctx context.Context, coll string, ops []WriteOp) error {
	c, err := s.collection(coll)
	if err != nil {
		s.unknownBulk(ctx, coll, len(ops))
		return nil
	}
	start := time.Now()
	defer func() { metrics.RecordStoreOperation("bulk_write", coll, float64(time.Since(start).Milliseconds())) }()

	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, op := range ops {
			if err := s.apply(ctx, tx, c, op); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) apply(ctx context.Context, tx *sql.Tx, c *schema.Collection, op WriteOp) error {
	switch op.Kind {
	case WriteDelete:
		if c.Raw {
			s.refuseRawDelete(ctx, c)
			return nil
		}
		rs, err := s.rows(ctx, tx, c.Name, op.Filter)
		if err != nil {
			return err
		}
		for _, r := range rs {
			if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, r.id); err != nil {
				return err
			}
			if err := s.record(ctx, tx, s.change(OpDelete, c.Name, r.doc, op.Filter)); err != nil {
				return err
			}
		}
		return nil
	case WriteInsert:
		doc, err := normalizeDoc(op.Doc)
		if err != nil {
			return err
		}
		if err := s.insert(ctx, tx, c.Name, doc); err != nil {
			return err
		}
		return s.record(ctx, tx, s.change(OpInsert, c.Name, doc, nil))
	case WriteUpsert:
		doc, err := normalizeDoc(op.Doc)
		if err != nil {
			return err
		}
		filter, err := normalizeDoc(op.Filter)
		if err != nil {
			return err
		}
		doc = applyFields(filter, doc)
		rs, err := s.rows(ctx, tx, c.Name, op.Filter)
		if err != nil {
			return err
		}
		if len(rs) > 0 {
			if err := s.replace(ctx, tx, rs[0].id, doc); err != nil {
				return err
			}
			return s.record(ctx, tx, s.change(OpUpdate, c.Name, doc, op.Filter))
		}
		if err := s.insert(ctx, tx, c.Name, doc); err != nil {
			return err
		}
		return s.record(ctx, tx, s.change(OpInsert, c.Name, doc, nil))
	}
	return fmt.Errorf("unknown write kind %d", op.Kind)
}

func (s *SQLiteStore) insert(ctx context.Context, tx *sql.Tx, coll string, d Doc) error {
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO documents (collection, body) VALUES (?, ?)`, coll, string(body))
	return mapConstraint(coll, err)
}

func (s *SQLiteStore) replace(ctx context.Context, tx *sql.Tx, id int64, d Doc) error {
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE documents SET body = ? WHERE id = ?`, string(body), id)
	return mapConstraint("", err)
}

func (s *SQLiteStore) record(ctx context.Context, tx *sql.Tx, c Change) error {
	doc, err := json.Marshal(c.Doc)
	if err != nil {
		return err
	}
	var query any
	if c.Query != nil {
		raw, err := json.Marshal(c.Query)
		if err != nil {
			return err
		}
		query = string(raw)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO changes (ts, op, namespace, collection, doc, query) VALUES (?, ?, ?, ?, ?, ?)`,
		c.Timestamp, string(c.Op), c.Namespace, c.Collection, string(doc), query)
	return err
}

// dsn makes every transaction take the write lock when it begins, so
// processes sharing the file stamp change-log entries in commit order, and
// lets a writer wait for the other process instead of failing busy.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate&_busy_timeout=5000"
}

// tx runs fn in a transaction. The mutex and the immediate write lock keep
// change-log timestamps in commit order, also across processes that share
// the database file.
func (s *SQLiteStore) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := s.last
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	var stored sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(ts) FROM changes`).Scan(&stored); err != nil {
		_ = tx.Rollback()
		return err
	}
	if stored.Int64 > s.last {
		s.last = stored.Int64
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		s.last = last
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetTBACache(ctx context.Context, url string) (TBACacheEntry, bool, error) {
	docs, err := s.Find(ctx, TBACache, Query{"api_url": url})
	if err != nil || len(docs) == 0 {
		return TBACacheEntry{}, false, err
	}
	return tbaCacheEntry(docs[0]), true, nil
}

func (s *SQLiteStore) UpdateTBACache(ctx context.Context, url string, data any, etag string) error {
	docs, err := s.Find(ctx, TBACache, Query{"api_url": url})
	if err != nil {
		return err
	}
	if len(docs) > 0 && sameCache(docs[0], data, etag) {
		return nil
	}
	return s.UpdateDocument(ctx, TBACache, Doc{"data": data, "etag": etag}, Query{"api_url": url})
}

func (s *SQLiteStore) TailChanges(ctx context.Context, since int64) ([]Change, error) {
	rs, err := s.db.QueryContext(ctx,
		`SELECT ts, op, namespace, collection, doc, query FROM changes WHERE ts > ? ORDER BY ts`, since)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []Change
	for rs.Next() {
		var (
			c     Change
			op    string
			doc   string
			query sql.NullString
		)
		if err := rs.Scan(&c.Timestamp, &op, &c.Namespace, &c.Collection, &doc, &query); err != nil {
			return nil, err
		}
		c.Op = Op(op)
		if err := json.Unmarshal([]byte(doc), &c.Doc); err != nil {
			return nil, err
		}
		if query.Valid {
			if err := json.Unmarshal([]byte(query.String), &c.Query); err != nil {
				return nil, err
			}
		}
		out = append(out, c)
	}
	return out, rs.Err()
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func mapConstraint(coll string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %s: %v", ErrDuplicateKey, coll, err)
	}
	return err
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// jsonPath turns a dotted field path into a quoted SQLite JSON path.
func jsonPath(field string) string {
	parts := strings.Split(field, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `\"`) + `"`
	}
	return "$." + strings.Join(parts, ".")
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
