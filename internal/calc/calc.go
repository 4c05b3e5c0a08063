// Package calc implements the calculation stages. Each stage watches input
// collections through the change log, recomputes the keys that changed and
// upserts its output by natural key.
package calc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/adapters/tba"
	"github.com/okian/scoutcalc/internal/eventdata"
	"github.com/okian/scoutcalc/internal/schema"
	"github.com/okian/scoutcalc/pkg/logger"
	"github.com/okian/scoutcalc/pkg/metrics"
)

// Document fields shared by several stages.
const (
	FieldTeamNumber   = "team_number"
	FieldMatchNumber  = "match_number"
	FieldScoutName    = "scout_name"
	FieldAllianceRed  = "alliance_color_is_red"
	FieldSourceQR     = "source_qr"
	FieldTeamNumbers  = "team_numbers"
	FieldConfidence   = "confidence_ranking"
	FieldAutoTimeline = "auto_timeline"
)

// Key identifies one output document by its natural key fields.
type Key = store.Query

// Stage is one step of the calculation pipeline.
type Stage interface {
	// Name identifies the stage in logs and metrics.
	Name() string

	// Watches lists the collections whose changes concern the stage.
	Watches() []string

	// Outputs lists the collections the stage owns.
	Outputs() []string

	// Keys extracts the affected keys from changes to watched collections.
	// all is true when every key must be recomputed.
	Keys(changes []store.Change) (keys []Key, all bool)

	// Recompute refreshes the output for keys; nil keys means every key
	// present in the inputs or outputs.
	Recompute(ctx context.Context, keys []Key) error

	// RecomputeAll clears the outputs and rebuilds them from every input.
	RecomputeAll(ctx context.Context) error
}

// TBASource reads cached TBA responses.
type TBASource interface {
	Cached(ctx context.Context, path string) (any, bool, error)
}

// Env is what stages share: the store, the schemas and event data.
type Env struct {
	Store    store.Store
	Schemas  *schema.Set
	TBA      TBASource
	Event    string
	Teams    []string
	Schedule eventdata.Schedule
	Log      logger.Logger
}

// Matches returns the decoded cached match list, or nil when none is cached.
func (e *Env) Matches(ctx context.Context) ([]tba.Match, error) {
	if e.TBA == nil {
		return nil, nil
	}
	data, ok, err := e.TBA.Cached(ctx, tba.MatchesPath(e.Event))
	if err != nil || !ok {
		return nil, err
	}
	return tba.DecodeMatches(data)
}

// QualSchedule returns the configured schedule, falling back to the cached
// TBA matches.
func (e *Env) QualSchedule(ctx context.Context) (eventdata.Schedule, error) {
	if len(e.Schedule) > 0 {
		return e.Schedule, nil
	}
	ms, err := e.Matches(ctx)
	if err != nil {
		return nil, err
	}
	return eventdata.ScheduleFromMatches(ms), nil
}

func (e *Env) logger() logger.Logger {
	if e.Log == nil {
		return logger.Discard()
	}
	return e.Log
}

// keysFrom extracts the values of fields from the documents of changes to
// any of colls, deduplicated. Documents lacking a field are skipped.
func keysFrom(changes []store.Change, colls []string, fields ...string) []Key {
	watch := map[string]bool{}
	for _, c := range colls {
		watch[c] = true
	}
	seen := map[string]bool{}
	var out []Key
	for _, ch := range changes {
		if !watch[ch.Collection] {
			continue
		}
		k, ok := keyOf(ch.Doc, fields)
		if !ok {
			continue
		}
		id := keyID(k)
		if !seen[id] {
			seen[id] = true
			out = append(out, k)
		}
	}
	sortKeys(out)
	return out
}

// distinctKeys lists every key present in any of colls.
func distinctKeys(ctx context.Context, st store.Store, fields []string, colls ...string) ([]Key, error) {
	seen := map[string]bool{}
	out := []Key{}
	for _, coll := range colls {
		docs, err := st.Find(ctx, coll, nil)
		if err != nil {
			return nil, storeErr(fmt.Errorf("find %s: %w", coll, err))
		}
		for _, d := range docs {
			k, ok := keyOf(d, fields)
			if !ok {
				continue
			}
			if id := keyID(k); !seen[id] {
				seen[id] = true
				out = append(out, k)
			}
		}
	}
	sortKeys(out)
	return out, nil
}

func keyOf(d store.Doc, fields []string) (Key, bool) {
	k := Key{}
	for _, f := range fields {
		v, ok := store.Get(d, f)
		if !ok || v == nil {
			return nil, false
		}
		k[f] = v
	}
	return k, true
}

func keyID(k Key) string {
	n, _ := store.Normalize(map[string]any(k))
	raw, _ := json.Marshal(n)
	return string(raw)
}

func sortKeys(ks []Key) {
	sort.Slice(ks, func(i, j int) bool { return keyID(ks[i]) < keyID(ks[j]) })
}

// syncDocs makes the documents of coll matching scope equal to desired, keyed
// by fields. Unchanged documents are not rewritten so reruns leave the
// change log untouched.
func syncDocs(ctx context.Context, st store.Store, coll string, scope store.Query, fields []string, desired []store.Doc) error {
	existing, err := st.Find(ctx, coll, scope)
	if err != nil {
		return fmt.Errorf("find %s: %w", coll, err)
	}
	have := make(map[string]store.Doc, len(existing))
	for _, d := range existing {
		if k, ok := keyOf(d, fields); ok {
			have[keyID(k)] = d
		}
	}

	var ops []store.WriteOp
	want := map[string]bool{}
	for _, d := range desired {
		k, ok := keyOf(d, fields)
		if !ok {
			return fmt.Errorf("%s: document lacks key %v", coll, fields)
		}
		id := keyID(k)
		want[id] = true
		if old, ok := have[id]; ok && store.Equal(old, d) {
			continue
		}
		ops = append(ops, store.Upsert(k, d))
	}
	for id, d := range have {
		if !want[id] {
			k, _ := keyOf(d, fields)
			ops = append(ops, store.Delete(k))
		}
	}
	if len(ops) == 0 {
		return nil
	}
	start := time.Now()
	err = st.BulkWrite(ctx, coll, ops)
	metrics.RecordStoreOperation("bulk_write", coll, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return fmt.Errorf("write %s: %w", coll, err)
	}
	return nil
}

// clearOutputs deletes every document of the stage outputs.
func clearOutputs(ctx context.Context, st store.Store, colls ...string) error {
	for _, c := range colls {
		if err := st.DeleteData(ctx, c, nil); err != nil {
			return fmt.Errorf("clear %s: %w", c, err)
		}
	}
	return nil
}

// each runs fn for every key, logging and counting failures without
// stopping. Store errors abort.
func each(ctx context.Context, log logger.Logger, stage string, keys []Key, fn func(Key) error) error {
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k); err != nil {
			if isStoreErr(err) {
				return err
			}
			metrics.RecordStageError(stage)
			log.Warn(ctx, "stage key failed", logger.String("stage", stage), logger.Any("key", k), logger.Error(err))
		}
	}
	return nil
}

// storeError marks failures of the store itself.
type storeError struct{ err error }

func (e storeError) Error() string { return e.err.Error() }
func (e storeError) Unwrap() error { return e.err }

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return storeError{err: err}
}

func isStoreErr(err error) bool {
	var se storeError
	return errors.As(err, &se)
}
