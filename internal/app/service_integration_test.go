package service_test

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"testing"

	service "github.com/okian/scoutcalc/internal/app"
	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/adapters/tba"
	"github.com/okian/scoutcalc/internal/calc"
	"github.com/okian/scoutcalc/internal/domain/qr"
	"github.com/okian/scoutcalc/internal/ingest"
	"github.com/okian/scoutcalc/internal/schema"
	. "github.com/smartystreets/goconvey/convey"
)

// objective encodes an objective QR whose timeline scores the given pieces.
func objective(c *qr.Codec, serial, scout, team string, match, autoConeHigh, autoCubeLow, teleCubeMid int) string {
	var tl []any
	t := 150
	add := func(n int, action string, step int) {
		for i := 0; i < n; i++ {
			t -= step
			tl = append(tl, map[string]any{"time": t, "action_type": action})
		}
	}
	add(autoConeHigh, "score_cone_high", 1)
	add(autoCubeLow, "score_cube_low", 1)
	t = 135
	tl = append(tl, map[string]any{"time": t, "action_type": "to_teleop"})
	add(teleCubeMid, "score_cube_mid", 5)

	rec := qr.Record{
		"serial_number": serial, "match_number": match, "timestamp": 1679000000,
		"match_collection_version_number": "v1.3", "scout_name": scout,
		"team_number": team, "scout_id": 1, "start_position": "1",
		"timeline": tl, "preloaded_gamepiece": "O",
		"auto_charge_level": "N", "tele_charge_level": "N",
	}
	out, err := c.Compress(qr.Objective, []qr.Record{rec})
	So(err, ShouldBeNil)
	return out
}

func (f *fixture) ingest(qrs ...string) {
	_, err := f.svc.Ingest(f.ctx, strings.Join(qrs, "\t"))
	So(err, ShouldBeNil)
}

func (f *fixture) cycle() service.Report {
	rep, err := f.svc.Cycle(f.ctx)
	So(err, ShouldBeNil)
	So(rep.Failed, ShouldBeEmpty)
	return rep
}

func (f *fixture) find(coll string, q store.Query) []store.Doc {
	docs, err := f.store.Find(f.ctx, coll, q)
	So(err, ShouldBeNil)
	return docs
}

func (f *fixture) changes() int {
	cs, err := f.store.TailChanges(f.ctx, 0)
	So(err, ShouldBeNil)
	return len(cs)
}

var derived = []string{
	store.UnconsolidatedObjTIM, store.SubjTIM, store.ObjTIM, store.TBATIM,
	store.ObjTeam, store.SubjTeam, store.TBATeam, store.Pickability,
	store.PredictedAIM, store.PredictedTeam, store.SimPrecision, store.ScoutPrecision,
}

// snapshot renders every derived collection as sorted JSON lines.
func (f *fixture) snapshot() map[string][]string {
	out := map[string][]string{}
	for _, coll := range derived {
		var lines []string
		for _, d := range f.find(coll, nil) {
			raw, err := json.Marshal(d)
			So(err, ShouldBeNil)
			lines = append(lines, string(raw))
		}
		sort.Strings(lines)
		out[coll] = lines
	}
	return out
}

func TestScenarios(t *testing.T) {
	Convey("Given a running pipeline", t, func() {
		f := newFixture()

		Convey("A single objective QR should flow to the team aggregate", func() {
			f.ingest(objective(f.codec, "s1", "mia", "254", 42, 1, 0, 2))
			f.cycle()

			So(f.find(store.UnconsolidatedObjTIM, nil), ShouldHaveLength, 1)
			tims := f.find(store.ObjTIM, nil)
			So(tims, ShouldHaveLength, 1)
			So(tims[0][calc.FieldConfidence], ShouldEqual, 1)
			teams := f.find(store.ObjTeam, store.Query{calc.FieldTeamNumber: "254"})
			So(teams, ShouldHaveLength, 1)
			So(teams[0]["matches_played"], ShouldEqual, 1)
		})

		Convey("Three agreeing scouts should keep their values", func() {
			f.ingest(
				objective(f.codec, "s1", "ana", "1678", 7, 2, 0, 3),
				objective(f.codec, "s2", "ben", "1678", 7, 2, 0, 3),
				objective(f.codec, "s3", "cy", "1678", 7, 2, 0, 3),
			)
			f.cycle()

			tims := f.find(store.ObjTIM, store.Query{calc.FieldTeamNumber: "1678", calc.FieldMatchNumber: 7})
			So(tims, ShouldHaveLength, 1)
			So(tims[0]["auto_cone_high"], ShouldEqual, 2)
			So(tims[0]["tele_cube_mid"], ShouldEqual, 3)
			So(tims[0][calc.FieldConfidence], ShouldEqual, 3)
		})

		Convey("Two agreeing scouts should outvote the third", func() {
			f.ingest(
				objective(f.codec, "s1", "ana", "971", 3, 0, 4, 0),
				objective(f.codec, "s2", "ben", "971", 3, 0, 4, 0),
				objective(f.codec, "s3", "cy", "971", 3, 0, 2, 0),
			)
			f.cycle()
			tims := f.find(store.ObjTIM, nil)
			So(tims[0]["auto_cube_low"], ShouldEqual, 4)
		})

		Convey("Given a spread of three reports", func() {
			f.ingest(
				objective(f.codec, "s1", "ana", "118", 5, 0, 1, 0),
				objective(f.codec, "s2", "ben", "118", 5, 0, 3, 0),
				objective(f.codec, "s3", "cy", "118", 5, 0, 8, 0),
			)
			f.cycle()

			Convey("The weighted mean should round to 3", func() {
				tims := f.find(store.ObjTIM, nil)
				So(tims[0]["auto_cube_low"], ShouldEqual, 3)
			})

			Convey("Blocklisting one report should reconsolidate from the rest", func() {
				n, err := f.in.Blocklist(f.ctx, ingest.Selector{Scout: "ana", Match: 5}, true)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				f.cycle()

				So(f.find(store.UnconsolidatedObjTIM, nil), ShouldHaveLength, 2)
				tims := f.find(store.ObjTIM, nil)
				So(tims[0][calc.FieldConfidence], ShouldEqual, 2)
				// {3, 8} meet in the middle
				So(tims[0]["auto_cube_low"], ShouldEqual, 6)

				teams := f.find(store.ObjTeam, store.Query{calc.FieldTeamNumber: "118"})
				So(teams[0]["auto_avg_cube_low"], ShouldEqual, 6)

				Convey("And undoing it should restore the report", func() {
					_, err := f.in.Blocklist(f.ctx, ingest.Selector{Scout: "ana", Match: 5}, false)
					So(err, ShouldBeNil)
					f.cycle()
					So(f.find(store.ObjTIM, nil)[0]["auto_cube_low"], ShouldEqual, 3)
				})
			})
		})
	})
}

// fakeTBA serves canned responses into the cache, or fails.
type fakeTBA struct {
	st        store.Store
	responses map[string]any
	fail      bool
}

func (f *fakeTBA) Get(ctx context.Context, path string) (any, error) {
	if f.fail {
		return nil, tba.ErrUnavailable
	}
	data, ok := f.responses[path]
	if !ok {
		return nil, tba.ErrUnexpectedStatus
	}
	return data, f.st.UpdateTBACache(ctx, path, data, "")
}

func played(num int, red, blue []string) map[string]any {
	keys := func(teams []string) []any {
		out := make([]any, len(teams))
		for i, t := range teams {
			out[i] = "frc" + t
		}
		return out
	}
	breakdown := map[string]any{
		"mobilityRobot1": "Yes", "mobilityRobot2": "No", "mobilityRobot3": "Yes",
		"autoChargeStationRobot1": "Docked", "autoChargeStationRobot2": "None", "autoChargeStationRobot3": "None",
		"endGameChargeStationRobot1": "Park", "endGameChargeStationRobot2": "Docked", "endGameChargeStationRobot3": "None",
		"foulPoints": 5.0, "linkPoints": 10.0,
		"autoGamePiecePoints": 6.0, "teleopGamePiecePoints": 10.0,
		"sustainabilityBonusAchieved": true, "activationBonusAchieved": false, "rp": 3.0,
	}
	return map[string]any{
		"key":          event + "_qm" + strconv.Itoa(num),
		"comp_level":   "qm",
		"match_number": float64(num),
		"alliances": map[string]any{
			"red":  map[string]any{"team_keys": keys(red), "score": 60.0},
			"blue": map[string]any{"team_keys": keys(blue), "score": 40.0},
		},
		"score_breakdown":  map[string]any{"red": breakdown, "blue": breakdown},
		"winning_alliance": "red",
	}
}

func TestMissingTBA(t *testing.T) {
	Convey("Given a TBA source that answered once", t, func() {
		set, err := schema.Default()
		So(err, ShouldBeNil)
		st := store.NewMemory(event, set.Collections)
		src := &fakeTBA{st: st, responses: map[string]any{
			tba.MatchesPath(event): []any{played(1, []string{"254", "1678", "971"}, []string{"118", "148", "2056"})},
		}}
		f := newFixtureOn(set, st, service.WithTBA(src, event))
		f.cycle()
		So(f.find(store.TBATIM, nil), ShouldHaveLength, 6)
		tbaTeams := f.snapshot()[store.TBATeam]
		So(tbaTeams, ShouldHaveLength, 6)

		Convey("When TBA becomes unreachable", func() {
			src.fail = true
			f.ingest(objective(f.codec, "s1", "mia", "254", 1, 1, 0, 0))
			rep := f.cycle()

			Convey("Scout derived collections should still update", func() {
				So(rep.Keys[calc.StageObjTIM], ShouldEqual, 1)
				So(f.find(store.ObjTIM, nil), ShouldHaveLength, 1)
				So(f.find(store.ObjTeam, nil), ShouldHaveLength, 1)
			})

			Convey("TBA derived collections should keep their values", func() {
				So(f.find(store.TBATIM, nil), ShouldHaveLength, 6)
				So(f.snapshot()[store.TBATeam], ShouldResemble, tbaTeams)
			})
		})
	})
}

func TestDerivationProperties(t *testing.T) {
	batches := func(f *fixture) [][]string {
		return [][]string{
			{
				objective(f.codec, "s1", "ana", "254", 1, 1, 2, 3),
				objective(f.codec, "s2", "ben", "254", 1, 1, 3, 3),
			},
			{
				objective(f.codec, "s3", "cy", "254", 1, 2, 2, 3),
				objective(f.codec, "s4", "ana", "1678", 2, 0, 1, 4),
			},
			{
				objective(f.codec, "s5", "ben", "1678", 2, 0, 1, 5),
				"*A1$Bs5678$C1$D1679000100$Ev1.3$Fleo%A254$B2$C3$DFALSE#A1678$B1$C1$DTRUE#A971$B3$C2$DFALSE^ETRUE",
			},
		}
	}

	Convey("Given QRs ingested over several cycles", t, func() {
		inc := newFixture()
		for _, b := range batches(inc) {
			inc.ingest(b...)
			inc.cycle()
		}

		Convey("A second cycle on the same inputs should change nothing", func() {
			before := inc.snapshot()
			entries := inc.changes()
			inc.cycle()
			So(inc.changes(), ShouldEqual, entries)
			So(inc.snapshot(), ShouldResemble, before)
		})

		Convey("The result should equal a single cycle over every QR", func() {
			once := newFixture()
			for _, b := range batches(once) {
				once.ingest(b...)
			}
			once.cycle()
			So(once.snapshot(), ShouldResemble, inc.snapshot())
		})

		Convey("A full recompute should reproduce the incremental result", func() {
			before := inc.snapshot()
			full := newFixtureOn(inc.set, inc.store, service.WithRecomputeAll(true))
			rep := full.cycle()
			So(rep.Keys[calc.StageObjTIM], ShouldEqual, -1)
			So(full.snapshot(), ShouldResemble, before)
		})
	})
}
