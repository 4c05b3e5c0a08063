package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/config"
	"github.com/okian/scoutcalc/internal/domain/qr"
	"github.com/okian/scoutcalc/internal/ingest"
	"github.com/okian/scoutcalc/internal/schema"
	"github.com/okian/scoutcalc/pkg/logger"
	"github.com/spf13/cobra"
)

// app is what every command opens: configuration, logging, schemas, the
// event store and an ingester over it.
type app struct {
	cfg   *config.Config
	log   logger.Logger
	set   *schema.Set
	store store.Store
	codec *qr.Codec
	in    *ingest.Ingester
}

func openApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr()), logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	log := logger.Get()
	level := cfg.LogLevel
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = "debug"
	}
	if err := logger.SetLevelString(level); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", level), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	set, err := loadSchemas(cfg)
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx, cfg, set, log)
	if err != nil {
		return nil, err
	}
	codec := qr.New(set.QR)
	in := ingest.New(st, codec, ingest.WithLogger(log.Named("ingest")))
	if err := in.Seed(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("seed ingester: %w", err)
	}
	return &app{cfg: cfg, log: log, set: set, store: st, codec: codec, in: in}, nil
}

func loadSchemas(cfg *config.Config) (*schema.Set, error) {
	if cfg.SchemaDir == "" {
		return schema.Default()
	}
	return schema.Load(cfg.SchemaDir)
}

func openStore(ctx context.Context, cfg *config.Config, set *schema.Set, log logger.Logger) (store.Store, error) {
	opt := store.WithLogger(log.Named("store"))
	if cfg.StoreBackend == config.BackendMemory {
		return store.NewMemory(cfg.EventKey, set.Collections, opt), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewSQLite(ctx, cfg.SQLitePath, cfg.EventKey, set.Collections, opt)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn(context.Background(), "closing store", logger.Error(err))
	}
}
