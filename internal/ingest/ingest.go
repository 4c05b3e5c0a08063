// Package ingest stores scanned QR payloads in the raw collection and
// applies the operator's blocklist and override mutations to them.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/domain/dedupe"
	"github.com/okian/scoutcalc/internal/domain/qr"
	"github.com/okian/scoutcalc/pkg/logger"
	"github.com/okian/scoutcalc/pkg/metrics"
)

// Raw QR document fields.
const (
	FieldData         = "data"
	FieldBlocklisted  = "blocklisted"
	FieldOverride     = "override"
	FieldEpochTime    = "epoch_time"
	FieldReadableTime = "readable_time"
)

const (
	resultAccepted  = "accepted"
	resultDuplicate = "duplicate"
	resultInvalid   = "invalid"
	readableLayout  = "2006-01-02 15:04:05"
	previewLength   = 24
)

// Result counts the outcome of one batch.
type Result struct {
	Accepted   int
	Duplicates int
	Invalid    int
}

// Ingester writes QR payloads to the raw collection exactly once each.
type Ingester struct {
	store store.Store
	codec *qr.Codec
	seen  dedupe.Deduper
	log   logger.Logger
	now   func() time.Time
}

// New creates an ingester. Seed must be called before the first batch so
// payloads stored by earlier runs are recognised.
func New(st store.Store, codec *qr.Codec, opts ...Option) *Ingester {
	in := &Ingester{
		store: st,
		codec: codec,
		seen:  dedupe.New(),
		log:   logger.Discard(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Seed loads every stored payload into the dedupe set.
func (in *Ingester) Seed(ctx context.Context) error {
	docs, err := in.store.Find(ctx, store.RawQR, nil)
	if err != nil {
		return fmt.Errorf("seed raw qr: %w", err)
	}
	data := make([]string, 0, len(docs))
	for _, d := range docs {
		data = append(data, store.Str(d, FieldData))
	}
	in.seen = dedupe.New(dedupe.WithSeen(data))
	metrics.UpdateRawQRTotal(len(docs))
	return nil
}

// Split breaks a scanner batch into payloads. Scanners separate codes with
// tabs; newlines are accepted too.
func Split(batch string) []string {
	fields := strings.FieldsFunc(batch, func(r rune) bool { return r == '\t' || r == '\n' || r == '\r' })
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Ingest stores every new payload of batch. Payloads with an unknown start
// character are rejected with a warning; repeats are skipped.
func (in *Ingester) Ingest(ctx context.Context, batch string) (Result, error) {
	var (
		res  Result
		docs []store.Doc
		kept []string
	)
	now := in.now()
	for _, data := range Split(batch) {
		if _, ok := in.codec.TypeOf(data); !ok {
			res.Invalid++
			metrics.RecordQRIngested(resultInvalid)
			in.log.Warn(ctx, "rejected qr with invalid start character", logger.String("qr", preview(data)))
			continue
		}
		if in.seen.SeenAndRecord(ctx, data) {
			res.Duplicates++
			metrics.RecordQRIngested(resultDuplicate)
			in.log.Debug(ctx, "skipped duplicate qr", logger.String("qr", preview(data)))
			continue
		}
		kept = append(kept, data)
		docs = append(docs, store.Doc{
			FieldData:         data,
			FieldBlocklisted:  false,
			FieldOverride:     map[string]any{},
			FieldEpochTime:    epochSeconds(now),
			FieldReadableTime: now.Format(readableLayout),
		})
	}
	if len(docs) == 0 {
		return res, nil
	}
	if err := in.store.InsertDocuments(ctx, store.RawQR, docs); err != nil {
		for _, d := range kept {
			in.seen.Unrecord(ctx, d)
		}
		return res, fmt.Errorf("insert raw qr: %w", err)
	}
	res.Accepted = len(docs)
	for range docs {
		metrics.RecordQRIngested(resultAccepted)
	}
	metrics.UpdateRawQRTotal(int(in.seen.Size()))
	in.log.Info(ctx, "ingested qr batch",
		logger.Int("accepted", res.Accepted),
		logger.Int("duplicates", res.Duplicates),
		logger.Int("invalid", res.Invalid))
	return res, nil
}

// epochSeconds is t in fractional seconds since the Unix epoch.
func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func preview(data string) string {
	if len(data) <= previewLength {
		return data
	}
	return data[:previewLength] + "..."
}
