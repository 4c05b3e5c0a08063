package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/scoutcalc/internal/adapters/http/api"
	"github.com/okian/scoutcalc/internal/adapters/replica"
	"github.com/okian/scoutcalc/internal/adapters/tba"
	service "github.com/okian/scoutcalc/internal/app"
	"github.com/okian/scoutcalc/internal/calc"
	"github.com/okian/scoutcalc/internal/domain/consolidation"
	"github.com/okian/scoutcalc/internal/eventdata"
	"github.com/okian/scoutcalc/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func newRunCommand() *cobra.Command {
	var recomputeAll bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the calculation loop",
		Long: `Run cycles the pipeline until interrupted. Before each cycle it reads a
QR batch: a prompt on a terminal, otherwise one tab-separated line of
standard input. Each cycle ingests the batch, refreshes TBA data and
recomputes every derived collection affected by new changes. Once standard
input closes, cycles repeat every cycle_interval_ms. The cloud replica and
the read API run alongside when configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("recompute-all") {
				a.cfg.RecomputeAll = recomputeAll
			}
			if a.cfg.RecomputeAll && !promptConfirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Recompute every derived collection from scratch?") {
				a.cfg.RecomputeAll = false
			}
			return run(ctx, a, batchSource(ctx, cmd.InOrStdin(), cmd.OutOrStdout()))
		},
	}
	cmd.Flags().BoolVar(&recomputeAll, "recompute-all", false, "Rebuild every derived collection on the first cycle")
	return cmd
}

// run wires the service and its companions and blocks until ctx is done.
func run(ctx context.Context, a *app, next service.BatchSource) error {
	cfg := a.cfg
	teams, err := eventdata.LoadTeamList(cfg.DataDir)
	if err != nil {
		a.close()
		return err
	}
	schedule, ok, err := eventdata.LoadSchedule(cfg.DataDir)
	if err != nil {
		a.close()
		return err
	}
	if !ok {
		a.log.Info(ctx, "no match schedule file, deriving it from TBA")
	}
	key, err := cfg.ReadTBAKey()
	if err != nil {
		a.close()
		return err
	}
	if key == "" {
		a.log.Warn(ctx, "no TBA key, TBA requests will be rejected", logger.String("path", cfg.TBAKeyFile))
	}

	client := tba.New(cfg.TBABaseURL, key, a.store,
		tba.WithTimeout(cfg.TBATimeout()),
		tba.WithRateLimit(cfg.TBARequestsPerSecond),
		tba.WithLogger(a.log.Named("tba")),
	)
	env := &calc.Env{
		Store:    a.store,
		Schemas:  a.set,
		TBA:      client,
		Event:    cfg.EventKey,
		Teams:    teams,
		Schedule: schedule,
		Log:      a.log.Named("calc"),
	}
	pick := consolidation.Picker(consolidation.TieBreak(cfg.TimelineTieBreak), rand.New(rand.NewSource(time.Now().UnixNano()))) //nolint:gosec // tie-breaks need no crypto
	stages := calc.Stages(env, calc.Options{Pick: pick, WinChanceMinMatches: cfg.WinChanceMinMatches})

	svc := service.New(a.store, a.in, stages,
		service.WithLogger(a.log.Named("service")),
		service.WithTBA(client, cfg.EventKey),
		service.WithRecomputeAll(cfg.RecomputeAll),
	)
	if err := svc.Start(ctx); err != nil {
		a.close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx, cfg.CycleInterval(), next)
	})

	if cfg.ReplicaURI != "" {
		sink, err := replica.NewMongoSink(gctx, cfg.ReplicaURI, cfg.ReplicaDatabase)
		if err != nil {
			// The replica is best effort; the pipeline runs without it.
			a.log.Error(ctx, "cloud replica disabled", logger.Error(err))
		} else {
			w := replica.New(a.store, sink, a.set.Collections,
				replica.WithInterval(cfg.ReplicaInterval()),
				replica.WithLogger(a.log.Named("replica")),
			)
			g.Go(func() error {
				defer func() {
					closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					_ = w.Close(closeCtx)
				}()
				return w.Run(gctx)
			})
		}
	}

	if cfg.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Addr,
			Handler:           api.NewServer(a.store, svc).Router(),
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
		}
		g.Go(func() error {
			a.log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	a.log.Info(context.Background(), "scoutcalc stopped")
	return err
}
