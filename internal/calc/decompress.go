package calc

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/domain/qr"
	"github.com/okian/scoutcalc/internal/ingest"
	"github.com/okian/scoutcalc/pkg/logger"
	"github.com/okian/scoutcalc/pkg/metrics"
)

// StageDecompress turns raw QRs into unconsolidated objective and
// subjective TIM rows.
const StageDecompress = "decompress"

const (
	failMalformed      = "malformed"
	failSchemaMismatch = "schema_mismatch"
)

var (
	objTIMKey  = []string{FieldScoutName, FieldTeamNumber, FieldMatchNumber}
	subjTIMKey = []string{FieldTeamNumber, FieldMatchNumber}
)

// Decompress decodes raw QRs. Blocklisted QRs contribute nothing, and
// overrides replace decoded fields before rows are written. Each natural
// key holds the row of the latest live QR that reports it (by epoch time,
// then payload), so resubmissions and blocklists settle the same way
// whether QRs arrive one by one or all at once.
type Decompress struct {
	env   *Env
	codec *qr.Codec
}

// NewDecompress creates the stage.
func NewDecompress(env *Env) *Decompress {
	return &Decompress{env: env, codec: qr.New(env.Schemas.QR)}
}

func (s *Decompress) Name() string      { return StageDecompress }
func (s *Decompress) Watches() []string { return []string{store.RawQR} }
func (s *Decompress) Outputs() []string {
	return []string{store.UnconsolidatedObjTIM, store.SubjTIM}
}

func (s *Decompress) Keys(changes []store.Change) ([]Key, bool) {
	return keysFrom(changes, s.Watches(), ingest.FieldData), false
}

// candidate is one decoded row together with the QR it came from.
type candidate struct {
	row   store.Doc
	data  string
	epoch float64
}

// later reports whether c wins over o for the same natural key.
func (c candidate) later(o candidate) bool {
	if c.epoch != o.epoch {
		return c.epoch > o.epoch
	}
	return c.data > o.data
}

// output is one output collection of the stage with its natural key.
type output struct {
	coll   string
	fields []string
	rows   map[string]candidate
	keys   map[string]Key
}

func (o *output) offer(c candidate) error {
	k, ok := keyOf(c.row, o.fields)
	if !ok {
		return fmt.Errorf("%s: row lacks key %v", o.coll, o.fields)
	}
	id := keyID(k)
	if cur, ok := o.rows[id]; !ok || c.later(cur) {
		o.rows[id] = c
	}
	return nil
}

// touch marks the natural key of d as affected.
func (o *output) touch(d store.Doc) {
	if k, ok := keyOf(d, o.fields); ok {
		o.keys[keyID(k)] = k
	}
}

// Recompute re-derives every natural key the QRs named by keys report now
// or reported before. nil keys re-derives everything.
func (s *Decompress) Recompute(ctx context.Context, keys []Key) error {
	raws, err := s.env.Store.Find(ctx, store.RawQR, nil)
	if err != nil {
		return storeErr(fmt.Errorf("find raw qr: %w", err))
	}
	changed := map[string]bool{}
	for _, k := range keys {
		if data, ok := k[ingest.FieldData].(string); ok {
			changed[data] = true
		}
	}
	all := keys == nil

	obj := &output{coll: store.UnconsolidatedObjTIM, fields: objTIMKey, rows: map[string]candidate{}, keys: map[string]Key{}}
	subj := &output{coll: store.SubjTIM, fields: subjTIMKey, rows: map[string]candidate{}, keys: map[string]Key{}}

	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return err
		}
		data := store.Str(raw, ingest.FieldData)
		if store.Bool(raw, ingest.FieldBlocklisted) {
			continue
		}
		report := all || changed[data]
		t, rows, ok := s.decode(ctx, data, raw, report)
		if !ok {
			continue
		}
		epoch, _ := store.Float(raw, ingest.FieldEpochTime)
		out := obj
		if t != qr.Objective {
			out = subj
		}
		for _, row := range rows {
			if err := out.offer(candidate{row: row, data: data, epoch: epoch}); err != nil {
				metrics.RecordStageError(s.Name())
				s.env.logger().Warn(ctx, "dropped qr row", logger.String("qr", data), logger.Error(err))
				continue
			}
			if report {
				out.touch(row)
			}
		}
	}

	for _, out := range []*output{obj, subj} {
		if err := s.touchExisting(ctx, out, changed, all); err != nil {
			return err
		}
		if err := s.settle(ctx, out); err != nil {
			return err
		}
	}
	return nil
}

func (s *Decompress) RecomputeAll(ctx context.Context) error {
	if err := clearOutputs(ctx, s.env.Store, s.Outputs()...); err != nil {
		return err
	}
	return s.Recompute(ctx, nil)
}

// decode turns one raw QR into rows with overrides applied. Failures are
// logged and counted only when report is set, so an unchanged bad QR is
// reported once.
func (s *Decompress) decode(ctx context.Context, data string, raw store.Doc, report bool) (qr.Type, []store.Doc, bool) {
	t, recs, err := s.codec.Decompress(data)
	switch {
	case err == nil:
	case !report:
		return t, nil, false
	case errors.Is(err, qr.ErrSchemaMismatch):
		metrics.RecordDecompressFailure(failSchemaMismatch)
		s.env.logger().Error(ctx, "qr schema version mismatch", logger.String("qr", data), logger.Error(err))
		return t, nil, false
	default:
		metrics.RecordDecompressFailure(failMalformed)
		s.env.logger().Warn(ctx, "malformed qr", logger.String("qr", data), logger.Error(err))
		return t, nil, false
	}
	override, _ := raw[ingest.FieldOverride].(map[string]any)
	rows := make([]store.Doc, 0, len(recs))
	for _, r := range recs {
		row := store.Doc{}
		for f, v := range r {
			row[f] = v
		}
		for f, v := range override {
			row[f] = v
		}
		row[FieldSourceQR] = data
		rows = append(rows, row)
	}
	return t, rows, true
}

// touchExisting marks the keys of stored rows that came from a changed QR,
// or every stored row on a full pass.
func (s *Decompress) touchExisting(ctx context.Context, out *output, changed map[string]bool, all bool) error {
	existing, err := s.env.Store.Find(ctx, out.coll, nil)
	if err != nil {
		return storeErr(fmt.Errorf("find %s: %w", out.coll, err))
	}
	for _, d := range existing {
		if all || changed[store.Str(d, FieldSourceQR)] {
			out.touch(d)
		}
	}
	return nil
}

// settle writes the winning row of every affected key, or removes the key
// when no live QR reports it any more.
func (s *Decompress) settle(ctx context.Context, out *output) error {
	ids := make([]string, 0, len(out.keys))
	for id := range out.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		var desired []store.Doc
		if c, ok := out.rows[id]; ok {
			desired = []store.Doc{c.row}
		}
		if err := syncDocs(ctx, s.env.Store, out.coll, out.keys[id], out.fields, desired); err != nil {
			return storeErr(err)
		}
	}
	return nil
}
