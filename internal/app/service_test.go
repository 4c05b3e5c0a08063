package service_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	service "github.com/okian/scoutcalc/internal/app"
	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/adapters/tba"
	"github.com/okian/scoutcalc/internal/calc"
	"github.com/okian/scoutcalc/internal/domain/qr"
	"github.com/okian/scoutcalc/internal/ingest"
	"github.com/okian/scoutcalc/internal/schema"
	"github.com/okian/scoutcalc/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const event = "2023caln"

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fixture is one event store with a service over it.
type fixture struct {
	ctx   context.Context
	set   *schema.Set
	store *store.MemoryStore
	codec *qr.Codec
	in    *ingest.Ingester
	svc   *service.Service
}

func newFixture(opts ...service.Option) *fixture {
	set, err := schema.Default()
	So(err, ShouldBeNil)
	return newFixtureOn(set, store.NewMemory(event, set.Collections), opts...)
}

func newFixtureOn(set *schema.Set, st *store.MemoryStore, opts ...service.Option) *fixture {
	env := &calc.Env{Store: st, Schemas: set, TBA: tba.New(tba.DefaultBaseURL, "", st), Event: event}
	codec := qr.New(set.QR)
	in := ingest.New(st, codec)
	svc := service.New(st, in, calc.Stages(env, calc.Options{WinChanceMinMatches: 5}), opts...)
	f := &fixture{ctx: context.Background(), set: set, store: st, codec: codec, in: in, svc: svc}
	So(svc.Start(f.ctx), ShouldBeNil)
	return f
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a new service", t, func() {
		f := newFixture()

		Convey("Then it should report itself started", func() {
			stats := f.svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["stages"], ShouldEqual, 11)
			So(stats["cycles"], ShouldEqual, 0)
		})

		Convey("Starting twice should be harmless", func() {
			So(f.svc.Start(f.ctx), ShouldBeNil)
		})

		Convey("When stopping the service", func() {
			f.svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				So(f.svc.GetStats()["started"], ShouldEqual, false)
			})

			Convey("And stopping again should be a no-op", func() {
				f.svc.Stop()
			})
		})
	})
}

func TestService_Cycle(t *testing.T) {
	Convey("Given an empty event", t, func() {
		f := newFixture()

		Convey("A cycle should finish without work", func() {
			rep, err := f.svc.Cycle(f.ctx)
			So(err, ShouldBeNil)
			So(rep.ID, ShouldNotBeEmpty)
			So(rep.Failed, ShouldBeEmpty)
			So(rep.Keys[calc.StageDecompress], ShouldEqual, 0)
			So(f.svc.GetStats()["cycles"], ShouldEqual, 1)
		})

		Convey("A cancelled context should stop the cycle", func() {
			ctx, cancel := context.WithCancel(f.ctx)
			cancel()
			_, err := f.svc.Cycle(ctx)
			So(err, ShouldEqual, context.Canceled)
		})

		Convey("Ingest should report accepted payloads", func() {
			res, err := f.svc.Ingest(f.ctx, objective(f.codec, "s1", "mia", "254", 42, 1, 0, 0))
			So(err, ShouldBeNil)
			So(res.Accepted, ShouldEqual, 1)
		})
	})
}

// batches serves qrs one per call, then io.EOF.
func batches(qrs ...string) (service.BatchSource, *int) {
	calls := 0
	return func(context.Context) (string, error) {
		calls++
		if calls > len(qrs) {
			return "", io.EOF
		}
		return qrs[calls-1], nil
	}, &calls
}

func TestService_Run(t *testing.T) {
	Convey("Given a running service fed by a batch source", t, func() {
		f := newFixture()
		ctx, cancel := context.WithTimeout(f.ctx, 100*time.Millisecond)
		defer cancel()

		Convey("Every batch should be ingested and cycled before the next", func() {
			next, calls := batches(
				objective(f.codec, "s1", "mia", "254", 42, 1, 0, 0),
				"",
				objective(f.codec, "s2", "kai", "1678", 7, 0, 2, 1),
			)
			So(f.svc.Run(ctx, 5*time.Millisecond, next), ShouldBeNil)
			So(*calls, ShouldEqual, 4)

			tims, err := f.store.Find(f.ctx, store.ObjTIM, nil)
			So(err, ShouldBeNil)
			So(tims, ShouldHaveLength, 2)
			// three batch cycles, then interval cycles after the input closed
			So(f.svc.GetStats()["cycles"], ShouldBeGreaterThan, 3)
		})

		Convey("A failing source should stop the loop", func() {
			boom := errors.New("scanner unplugged")
			err := f.svc.Run(ctx, time.Millisecond, func(context.Context) (string, error) { return "", boom })
			So(errors.Is(err, boom), ShouldBeTrue)
		})

		Convey("A source blocked on input should yield to cancellation", func() {
			err := f.svc.Run(ctx, time.Millisecond, func(ctx context.Context) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			})
			So(err, ShouldBeNil)
		})

		Convey("Without a source it should cycle on the interval", func() {
			So(f.svc.Run(ctx, 5*time.Millisecond, nil), ShouldBeNil)
			So(f.svc.GetStats()["cycles"], ShouldBeGreaterThan, 1)
		})
	})
}
