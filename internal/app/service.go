// Package service drives the calculation pipeline: it ingests QR batches,
// refreshes TBA data and runs every stage over the changes since its last
// cycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/adapters/tba"
	"github.com/okian/scoutcalc/internal/calc"
	"github.com/okian/scoutcalc/internal/ingest"
	"github.com/okian/scoutcalc/pkg/logger"
	"github.com/okian/scoutcalc/pkg/metrics"
)

// Fetcher refreshes one TBA path into the cache.
type Fetcher interface {
	Get(ctx context.Context, path string) (any, error)
}

// Report summarises one cycle.
type Report struct {
	ID       string
	Keys     map[string]int
	Failed   []string
	Duration time.Duration
}

// Service runs cycles over a store. Cycles never overlap.
type Service struct {
	mu sync.Mutex

	store    store.Store
	ingester *ingest.Ingester
	stages   []calc.Stage

	tba   Fetcher
	event string

	// last is the newest change-log timestamp each stage has observed.
	last         map[string]int64
	recomputeAll bool
	cycles       int

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTBA refreshes the event's TBA paths at the start of every cycle.
func WithTBA(f Fetcher, event string) Option {
	return func(s *Service) {
		s.tba = f
		s.event = event
	}
}

// WithRecomputeAll rebuilds every output from scratch on the first cycle.
func WithRecomputeAll(all bool) Option {
	return func(s *Service) {
		s.recomputeAll = all
	}
}

// New constructs a Service. stages run in the given order.
func New(st store.Store, in *ingest.Ingester, stages []calc.Stage, opts ...Option) *Service {
	s := &Service{
		store:    st,
		ingester: in,
		stages:   stages,
		last:     make(map[string]int64, len(stages)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Discard()
	}
	return s
}

// Start seeds the duplicate filter from the stored raw QRs.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if err := s.ingester.Seed(ctx); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	s.started = true
	s.logger.Info(ctx, "calculation service started",
		logger.Int("stages", len(s.stages)),
		logger.Bool("recompute_all", s.recomputeAll),
	)
	return nil
}

// Stop closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing store", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "calculation service stopped")
}

// Ingest stores a batch of QRs. The next cycle derives from them.
func (s *Service) Ingest(ctx context.Context, batch string) (ingest.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ingester.Ingest(ctx, batch)
}

// Cycle refreshes TBA data and runs every stage once. A failing stage is
// logged and retried on the next cycle from the same change-log position.
func (s *Service) Cycle(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	rep := Report{ID: uuid.NewString(), Keys: make(map[string]int, len(s.stages))}
	log := s.logger.With(logger.String("cycle", rep.ID))

	s.refreshTBA(ctx, log)

	full := s.recomputeAll && s.cycles == 0
	for _, st := range s.stages {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		n, err := s.runStage(ctx, st, full)
		if err != nil {
			metrics.RecordStageError(st.Name())
			log.Error(ctx, "stage failed", logger.String("stage", st.Name()), logger.Error(err))
			rep.Failed = append(rep.Failed, st.Name())
			continue
		}
		rep.Keys[st.Name()] = n
	}
	s.cycles++

	if changes, err := s.store.TailChanges(ctx, 0); err == nil {
		metrics.UpdateChangeLogEntries(len(changes))
	}
	if raw, err := s.store.Find(ctx, store.RawQR, nil); err == nil {
		metrics.UpdateRawQRTotal(len(raw))
	}
	rep.Duration = time.Since(start)
	metrics.RecordCycle(float64(rep.Duration.Milliseconds()))
	log.Info(ctx, "cycle finished",
		logger.Duration("took", rep.Duration),
		logger.Any("keys", rep.Keys),
		logger.Int("failed", len(rep.Failed)),
	)
	return rep, nil
}

// runStage feeds a stage the changes to its watched collections and
// returns how many keys it processed; -1 stands for a full pass.
func (s *Service) runStage(ctx context.Context, st calc.Stage, full bool) (int, error) {
	name := st.Name()
	changes, err := s.store.TailChanges(ctx, s.last[name])
	if err != nil {
		return 0, fmt.Errorf("tail changes: %w", err)
	}

	start := time.Now()
	n := 0
	if full {
		err = st.RecomputeAll(ctx)
		n = -1
	} else {
		keys, all := st.Keys(watched(changes, st.Watches()))
		switch {
		case all:
			err = st.Recompute(ctx, nil)
			n = -1
		case len(keys) > 0:
			err = st.Recompute(ctx, keys)
			n = len(keys)
		}
	}
	if err != nil {
		return 0, err
	}
	if len(changes) > 0 {
		s.last[name] = changes[len(changes)-1].Timestamp
	}
	metrics.RecordStage(name, float64(time.Since(start).Milliseconds()), max(n, 0))
	return n, nil
}

func watched(changes []store.Change, colls []string) []store.Change {
	want := make(map[string]bool, len(colls))
	for _, c := range colls {
		want[c] = true
	}
	var out []store.Change
	for _, ch := range changes {
		if want[ch.Collection] {
			out = append(out, ch)
		}
	}
	return out
}

// refreshTBA pulls the event's matches, teams and rankings. Failures keep
// the cached responses and the cycle goes on.
func (s *Service) refreshTBA(ctx context.Context, log logger.Logger) {
	if s.tba == nil || s.event == "" {
		return
	}
	for _, path := range []string{tba.MatchesPath(s.event), tba.TeamsPath(s.event), tba.RankingsPath(s.event)} {
		if _, err := s.tba.Get(ctx, path); err != nil {
			log.Warn(ctx, "tba refresh failed, using cached data", logger.String("path", path), logger.Error(err))
		}
	}
}

// BatchSource yields the next QR batch. It returns io.EOF once its input is
// exhausted.
type BatchSource func(ctx context.Context) (string, error)

// Run ingests a batch from next before every cycle. Once next reports
// io.EOF, or when next is nil, it cycles every interval instead. It returns
// when ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration, next BatchSource) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if next != nil {
			batch, err := next(ctx)
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, io.EOF):
				next = nil
				s.logger.Info(ctx, "qr input closed, cycling on interval", logger.Duration("interval", interval))
			case err != nil:
				return fmt.Errorf("read qr batch: %w", err)
			case strings.TrimSpace(batch) != "":
				if _, err := s.Ingest(ctx, batch); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
			}
		}
		if _, err := s.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if next != nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]any{
		"started": s.started,
		"cycles":  s.cycles,
		"stages":  len(s.stages),
	}
	if s.started {
		ctx := context.Background()
		if raw, err := s.store.Find(ctx, store.RawQR, nil); err == nil {
			stats["raw_qrs"] = len(raw)
		}
		if changes, err := s.store.TailChanges(ctx, 0); err == nil {
			stats["change_log_entries"] = len(changes)
		}
	}
	return stats
}
