package calc_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/adapters/tba"
	"github.com/okian/scoutcalc/internal/calc"
	"github.com/okian/scoutcalc/internal/domain/qr"
	"github.com/okian/scoutcalc/internal/eventdata"
	"github.com/okian/scoutcalc/internal/ingest"
	"github.com/okian/scoutcalc/internal/schema"
	. "github.com/smartystreets/goconvey/convey"
)

const (
	event        = "2023caln"
	objectiveQR  = "+A1$Bs1234$C12$D1679000000$Ev1.3$Fmia%Z254$Y3$X1$W140AA120AD100AM090AC060AJ045AK$VO$UD$TE"
	secondQR     = "+A1$Bs1236$C12$D1679000050$Ev1.3$Fkai%Z254$Y2$X1$W140AA120AD100AM090AC060AJ045AK$VO$UD$TE"
	subjectiveQR = "*A1$Bs5678$C12$D1679000100$Ev1.3$Fleo%A254$B2$C3$DFALSE#A1678$B1$C1$DTRUE#A971$B3$C2$DFALSE^ETRUE"
)

func newEnv() (context.Context, *store.MemoryStore, *calc.Env) {
	set, err := schema.Default()
	So(err, ShouldBeNil)
	st := store.NewMemory(event, set.Collections)
	env := &calc.Env{Store: st, Schemas: set, TBA: tba.New(tba.DefaultBaseURL, "", st), Event: event}
	return context.Background(), st, env
}

func ingestQRs(ctx context.Context, st store.Store, env *calc.Env, qrs string) *ingest.Ingester {
	in := ingest.New(st, qr.New(env.Schemas.QR))
	So(in.Seed(ctx), ShouldBeNil)
	_, err := in.Ingest(ctx, qrs)
	So(err, ShouldBeNil)
	return in
}

func changeCount(ctx context.Context, st store.Store) int {
	changes, err := st.TailChanges(ctx, 0)
	So(err, ShouldBeNil)
	return len(changes)
}

func breakdown(fouls, links float64) map[string]any {
	return map[string]any{
		"mobilityRobot1":              "Yes",
		"mobilityRobot2":              "No",
		"mobilityRobot3":              "Yes",
		"autoChargeStationRobot1":     "Docked",
		"autoChargeStationRobot2":     "None",
		"autoChargeStationRobot3":     "None",
		"endGameChargeStationRobot1":  "Park",
		"endGameChargeStationRobot2":  "Docked",
		"endGameChargeStationRobot3":  "None",
		"foulPoints":                  fouls,
		"linkPoints":                  links,
		"autoGamePiecePoints":         0.0,
		"teleopGamePiecePoints":       0.0,
		"sustainabilityBonusAchieved": true,
		"activationBonusAchieved":     false,
		"rp":                          3.0,
	}
}

func tbaMatch(num int, red, blue []string, redScore, blueScore float64, winner string) map[string]any {
	keys := func(teams []string) []any {
		out := make([]any, len(teams))
		for i, t := range teams {
			out[i] = "frc" + t
		}
		return out
	}
	return map[string]any{
		"key":          event + "_qm" + string(rune('0'+num)),
		"comp_level":   "qm",
		"match_number": float64(num),
		"alliances": map[string]any{
			"red":  map[string]any{"team_keys": keys(red), "score": redScore},
			"blue": map[string]any{"team_keys": keys(blue), "score": blueScore},
		},
		"score_breakdown": map[string]any{
			"red":  breakdown(4, 10),
			"blue": breakdown(0, 5),
		},
		"winning_alliance": winner,
	}
}

func TestDecompress(t *testing.T) {
	Convey("Given stored objective and subjective QRs", t, func() {
		ctx, st, env := newEnv()
		in := ingestQRs(ctx, st, env, objectiveQR+"\t"+subjectiveQR)
		stage := calc.NewDecompress(env)
		So(stage.Recompute(ctx, nil), ShouldBeNil)

		Convey("Each QR should yield rows tagged with their source", func() {
			obj, err := st.Find(ctx, store.UnconsolidatedObjTIM, nil)
			So(err, ShouldBeNil)
			So(obj, ShouldHaveLength, 1)
			So(obj[0][calc.FieldTeamNumber], ShouldEqual, "254")
			So(obj[0][calc.FieldSourceQR], ShouldEqual, objectiveQR)

			subj, err := st.Find(ctx, store.SubjTIM, nil)
			So(err, ShouldBeNil)
			So(subj, ShouldHaveLength, 3)
		})

		Convey("Blocklisting a QR should remove exactly its rows", func() {
			_, err := in.Blocklist(ctx, ingest.Selector{Team: "254", Match: 12, Scout: "mia"}, true)
			So(err, ShouldBeNil)
			changes, err := st.TailChanges(ctx, 0)
			So(err, ShouldBeNil)
			keys, all := stage.Keys(changes)
			So(all, ShouldBeFalse)
			So(stage.Recompute(ctx, keys), ShouldBeNil)

			obj, _ := st.Find(ctx, store.UnconsolidatedObjTIM, nil)
			So(obj, ShouldBeEmpty)
			subj, _ := st.Find(ctx, store.SubjTIM, nil)
			So(subj, ShouldHaveLength, 3)
		})

		Convey("An override should replace the decoded field", func() {
			n, err := in.Override(ctx, ingest.Selector{Scout: "mia"}, "auto_charge_level", "E")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			So(stage.Recompute(ctx, nil), ShouldBeNil)
			obj, _ := st.Find(ctx, store.UnconsolidatedObjTIM, nil)
			So(obj[0]["auto_charge_level"], ShouldEqual, "E")
		})

		Convey("Rerunning should not touch the change log", func() {
			before := changeCount(ctx, st)
			So(stage.Recompute(ctx, nil), ShouldBeNil)
			So(changeCount(ctx, st), ShouldEqual, before)
		})
	})

	Convey("A malformed QR should produce no rows and no error", t, func() {
		ctx, st, env := newEnv()
		ingestQRs(ctx, st, env, "+A1$Bs1234$Ctwelve$D1$Ev$Fmia%Z254$Y3$X1$W$VO$UD$TE")
		So(calc.NewDecompress(env).Recompute(ctx, nil), ShouldBeNil)
		obj, _ := st.Find(ctx, store.UnconsolidatedObjTIM, nil)
		So(obj, ShouldBeEmpty)
	})
}

func TestDecompressResubmission(t *testing.T) {
	// Same scout, robot and match as objectiveQR with a different serial.
	const resubmitted = "+A1$Bs0001$C12$D1679000200$Ev1.3$Fmia%Z254$Y1$X1$W140AA$VO$UD$TE"

	Convey("Given a scout who resubmits a report", t, func() {
		ctx, st, env := newEnv()
		stage := calc.NewDecompress(env)
		now := time.Date(2023, 3, 16, 10, 0, 0, 0, time.UTC)
		in := ingest.New(st, qr.New(env.Schemas.QR), ingest.WithClock(func() time.Time { return now }))
		So(in.Seed(ctx), ShouldBeNil)

		var last int64
		step := func() {
			changes, err := st.TailChanges(ctx, last)
			So(err, ShouldBeNil)
			if len(changes) == 0 {
				return
			}
			last = changes[len(changes)-1].Timestamp
			keys, all := stage.Keys(changes)
			So(all, ShouldBeFalse)
			if len(keys) > 0 {
				So(stage.Recompute(ctx, keys), ShouldBeNil)
			}
		}
		source := func() []any {
			rows, err := st.Find(ctx, store.UnconsolidatedObjTIM, nil)
			So(err, ShouldBeNil)
			out := make([]any, len(rows))
			for i, r := range rows {
				out[i] = r[calc.FieldSourceQR]
			}
			return out
		}

		_, err := in.Ingest(ctx, objectiveQR)
		So(err, ShouldBeNil)
		step()
		now = now.Add(time.Minute)
		_, err = in.Ingest(ctx, resubmitted)
		So(err, ShouldBeNil)
		step()

		Convey("The later report should hold the key", func() {
			So(source(), ShouldResemble, []any{resubmitted})
		})

		Convey("A full rebuild should pick the same report", func() {
			So(stage.RecomputeAll(ctx), ShouldBeNil)
			So(source(), ShouldResemble, []any{resubmitted})
		})

		Convey("Blocklisting the later report should restore the earlier one", func() {
			n, err := in.Blocklist(ctx, ingest.Selector{Serial: "s0001"}, true)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			step()
			So(source(), ShouldResemble, []any{objectiveQR})

			Convey("And a full rebuild should agree", func() {
				So(stage.RecomputeAll(ctx), ShouldBeNil)
				So(source(), ShouldResemble, []any{objectiveQR})
			})

			Convey("And undoing should bring the later report back", func() {
				_, err := in.Blocklist(ctx, ingest.Selector{Serial: "s0001"}, false)
				So(err, ShouldBeNil)
				step()
				So(source(), ShouldResemble, []any{resubmitted})
			})
		})

		Convey("Blocklisting both reports should empty the key", func() {
			_, err := in.Blocklist(ctx, ingest.Selector{Scout: "mia"}, true)
			So(err, ShouldBeNil)
			step()
			So(source(), ShouldBeEmpty)
		})
	})
}

func TestObjTIMAndTeam(t *testing.T) {
	Convey("Given two scouts of the same robot", t, func() {
		ctx, st, env := newEnv()
		ingestQRs(ctx, st, env, objectiveQR+"\t"+secondQR)
		So(calc.NewDecompress(env).Recompute(ctx, nil), ShouldBeNil)

		stage := calc.NewObjTIM(env, nil)
		So(stage.Recompute(ctx, nil), ShouldBeNil)

		Convey("One consolidated TIM should record both reports", func() {
			tims, err := st.Find(ctx, store.ObjTIM, nil)
			So(err, ShouldBeNil)
			So(tims, ShouldHaveLength, 1)
			So(tims[0][calc.FieldConfidence], ShouldEqual, 2)
			So(tims[0]["auto_cone_high"], ShouldEqual, 1)
			So(tims[0]["auto_cube_high"], ShouldEqual, 1)
			So(tims[0][calc.FieldMatchNumber], ShouldEqual, 12)
			So(tims[0][calc.FieldAutoTimeline], ShouldHaveLength, 2)
		})

		Convey("The team aggregate should count the match", func() {
			So(calc.NewObjTeam(env).Recompute(ctx, nil), ShouldBeNil)
			teams, err := st.Find(ctx, store.ObjTeam, store.Query{calc.FieldTeamNumber: "254"})
			So(err, ShouldBeNil)
			So(teams, ShouldHaveLength, 1)
			So(teams[0]["matches_played"], ShouldEqual, 1)
		})

		Convey("A full rebuild should match the incremental result", func() {
			before, _ := st.Find(ctx, store.ObjTIM, nil)
			So(stage.RecomputeAll(ctx), ShouldBeNil)
			after, _ := st.Find(ctx, store.ObjTIM, nil)
			So(after, ShouldHaveLength, 1)
			So(store.Equal(before[0], after[0]), ShouldBeTrue)
		})

		Convey("A rerun should write nothing", func() {
			before := changeCount(ctx, st)
			So(stage.Recompute(ctx, nil), ShouldBeNil)
			So(changeCount(ctx, st), ShouldEqual, before)
		})
	})
}

func TestTBAStages(t *testing.T) {
	Convey("Given cached TBA matches", t, func() {
		ctx, st, env := newEnv()
		red, blue := []string{"254", "1678", "971"}, []string{"118", "148", "2056"}
		matches := []any{
			tbaMatch(1, red, blue, 120, 90, "red"),
			tbaMatch(2, blue, red, 80, 100, "blue"),
		}
		So(st.UpdateTBACache(ctx, tba.MatchesPath(event), matches, `"v1"`), ShouldBeNil)

		Convey("A cache change should ask for a full TBA TIM pass", func() {
			changes, err := st.TailChanges(ctx, 0)
			So(err, ShouldBeNil)
			_, all := calc.NewTBATIM(env).Keys(changes)
			So(all, ShouldBeTrue)
		})

		Convey("TBA TIMs should read each robot's slot", func() {
			So(calc.NewTBATIM(env).Recompute(ctx, nil), ShouldBeNil)
			tims, err := st.Find(ctx, store.TBATIM, store.Query{calc.FieldTeamNumber: "254", calc.FieldMatchNumber: 1})
			So(err, ShouldBeNil)
			So(tims, ShouldHaveLength, 1)
			So(tims[0]["mobility"], ShouldEqual, true)
			So(tims[0]["auto_docked_tba"], ShouldEqual, true)
			So(tims[0]["endgame_parked_tba"], ShouldEqual, true)

			slot2, _ := st.Find(ctx, store.TBATIM, store.Query{calc.FieldTeamNumber: "1678", calc.FieldMatchNumber: 1})
			So(slot2[0]["mobility"], ShouldEqual, false)
			So(slot2[0]["endgame_docked_tba"], ShouldEqual, true)

			all, _ := st.Find(ctx, store.TBATIM, nil)
			So(all, ShouldHaveLength, 12)
		})

		Convey("TBA team aggregates should carry calculated contributions", func() {
			So(calc.NewTBATIM(env).Recompute(ctx, nil), ShouldBeNil)
			So(calc.NewTBATeam(env).Recompute(ctx, nil), ShouldBeNil)
			teams, err := st.Find(ctx, store.TBATeam, store.Query{calc.FieldTeamNumber: "254"})
			So(err, ShouldBeNil)
			So(teams, ShouldHaveLength, 1)
			So(teams[0]["tba_matches"], ShouldEqual, 2)
			So(teams[0]["mobility_rate"], ShouldEqual, 1.0)
			So(teams[0], ShouldContainKey, "link_cc")
			So(teams[0], ShouldContainKey, "foul_cc")
		})
	})
}

func TestEquations(t *testing.T) {
	Convey("Opposing contributions should credit the other alliance's value", t, func() {
		set, err := schema.Default()
		So(err, ShouldBeNil)
		ms, err := tba.DecodeMatches([]any{tbaMatch(1, []string{"1", "2", "3"}, []string{"4", "5", "6"}, 50, 40, "red")})
		So(err, ShouldBeNil)

		var foul, link schema.Contribution
		for _, c := range set.TBATeam.Contributions {
			switch c.Name {
			case "foul_cc":
				foul = c
			case "link_cc":
				link = c
			}
		}
		eqs := calc.Equations(ms, foul)
		So(eqs, ShouldHaveLength, 2)
		So(eqs[0].Teams, ShouldResemble, []string{"1", "2", "3"})
		So(eqs[0].Value, ShouldEqual, 0)
		So(eqs[1].Value, ShouldEqual, 4)

		eqs = calc.Equations(ms, link)
		So(eqs[0].Value, ShouldEqual, 10)
	})
}

func objTeamDoc(set *schema.Set, team string) store.Doc {
	d := store.Doc{calc.FieldTeamNumber: team}
	for _, refs := range set.PredictedAIM.TeamFields {
		for _, ref := range refs {
			if coll, field, _ := schema.SplitRef(ref); coll == store.ObjTeam {
				d[field] = 0.5
			}
		}
	}
	return d
}

func seedTeams(ctx context.Context, st store.Store, set *schema.Set, withTBA ...string) {
	var obj, tbaTeams []store.WriteOp
	for _, team := range []string{"254", "1678", "971", "118", "148", "2056"} {
		obj = append(obj, store.Upsert(store.Query{calc.FieldTeamNumber: team}, objTeamDoc(set, team)))
	}
	for _, team := range withTBA {
		tbaTeams = append(tbaTeams, store.Upsert(store.Query{calc.FieldTeamNumber: team},
			store.Doc{calc.FieldTeamNumber: team, "mobility_rate": 1.0, "foul_cc": 2.0}))
	}
	So(st.BulkWrite(ctx, store.ObjTeam, obj), ShouldBeNil)
	So(st.BulkWrite(ctx, store.TBATeam, tbaTeams), ShouldBeNil)
}

func TestPredicted(t *testing.T) {
	Convey("Given a one match schedule", t, func() {
		ctx, st, env := newEnv()
		env.Schedule = eventdata.Schedule{
			1: {Red: []string{"254", "1678", "971"}, Blue: []string{"118", "148", "2056"}},
		}
		stage := calc.NewPredictedAIM(env, 5)

		Convey("An alliance with a team lacking TBA data should not be predicted", func() {
			seedTeams(ctx, st, env.Schemas, "254", "1678", "971", "118", "148")
			So(stage.Recompute(ctx, nil), ShouldBeNil)

			aims, err := st.Find(ctx, store.PredictedAIM, nil)
			So(err, ShouldBeNil)
			So(aims, ShouldHaveLength, 1)
			So(aims[0][calc.FieldAllianceRed], ShouldEqual, true)
			So(aims[0][calc.FieldWinChance], ShouldEqual, 0.5)
			So(aims[0][calc.FieldHasTBAData], ShouldEqual, false)
			So(aims[0][calc.FieldTeamNumbers], ShouldResemble, []any{"254", "1678", "971"})
			So(aims[0][calc.FieldPredictedScore], ShouldBeGreaterThan, 0)
		})

		Convey("A played match should carry its actual outcome", func() {
			seedTeams(ctx, st, env.Schemas, "254", "1678", "971", "118", "148", "2056")
			matches := []any{tbaMatch(1, []string{"254", "1678", "971"}, []string{"118", "148", "2056"}, 120, 90, "red")}
			So(st.UpdateTBACache(ctx, tba.MatchesPath(event), matches, ""), ShouldBeNil)
			So(stage.Recompute(ctx, nil), ShouldBeNil)

			red, err := st.Find(ctx, store.PredictedAIM, store.Query{calc.FieldAllianceRed: true})
			So(err, ShouldBeNil)
			So(red, ShouldHaveLength, 1)
			So(red[0][calc.FieldHasTBAData], ShouldEqual, true)
			So(red[0][calc.FieldActualScore], ShouldEqual, 120)
			So(red[0][calc.FieldActualRP1], ShouldEqual, 1)
			So(red[0][calc.FieldActualRP2], ShouldEqual, 0)
			So(red[0][calc.FieldWonMatch], ShouldEqual, true)

			Convey("Predicted team ranks should prefer actual ranking points", func() {
				rankings := map[string]any{"rankings": []any{
					map[string]any{"team_key": "frc254", "rank": 1.0, "matches_played": 1.0,
						"extra_stats": []any{3.0}, "sort_orders": []any{3.0}},
				}}
				So(st.UpdateTBACache(ctx, tba.RankingsPath(event), rankings, ""), ShouldBeNil)
				So(calc.NewPredictedTeam(env).Recompute(ctx, nil), ShouldBeNil)

				teams, err := st.Find(ctx, store.PredictedTeam, store.Query{calc.FieldTeamNumber: "254"})
				So(err, ShouldBeNil)
				So(teams, ShouldHaveLength, 1)
				So(teams[0][calc.FieldPredictedRPs], ShouldEqual, 3)
				// Every team has 3 RPs so ranks follow team numbers.
				So(teams[0][calc.FieldPredictedRank], ShouldEqual, 3)
				So(teams[0][calc.FieldCurrentRank], ShouldEqual, 1)
				So(teams[0][calc.FieldCurrentRPs], ShouldEqual, 3)
				So(teams[0][calc.FieldCurrentAvgRPs], ShouldEqual, 3)

				all, _ := st.Find(ctx, store.PredictedTeam, nil)
				So(all, ShouldHaveLength, 6)

				Convey("And listed teams without data should still get a row", func() {
					env.Teams = []string{"254", "4414"}
					So(calc.NewPredictedTeam(env).Recompute(ctx, nil), ShouldBeNil)

					idle, err := st.Find(ctx, store.PredictedTeam, store.Query{calc.FieldTeamNumber: "4414"})
					So(err, ShouldBeNil)
					So(idle, ShouldHaveLength, 1)
					So(idle[0][calc.FieldScheduledMatches], ShouldEqual, 0)
					_, ranked := idle[0][calc.FieldPredictedRank]
					So(ranked, ShouldBeFalse)

					all, _ := st.Find(ctx, store.PredictedTeam, nil)
					So(all, ShouldHaveLength, 7)
				})
			})
		})
	})
}

func TestPickabilityStage(t *testing.T) {
	Convey("Given a team without subjective data", t, func() {
		ctx, st, env := newEnv()
		So(st.BulkWrite(ctx, store.ObjTeam, []store.WriteOp{store.Upsert(store.Query{calc.FieldTeamNumber: "254"}, store.Doc{
			calc.FieldTeamNumber:       "254",
			"auto_avg_grid_points":     10.0,
			"tele_avg_grid_points":     20.0,
			"auto_charge_success_rate": 0.5,
			"tele_engaged_rate":        0.25,
			"tele_charge_success_rate": 0.5,
		})}), ShouldBeNil)
		So(st.BulkWrite(ctx, store.TBATeam, []store.WriteOp{store.Upsert(store.Query{calc.FieldTeamNumber: "254"}, store.Doc{
			calc.FieldTeamNumber: "254",
			"mobility_rate":      1.0,
			"foul_cc":            2.0,
		})}), ShouldBeNil)

		stage := calc.NewPickability(env)
		changes, err := st.TailChanges(ctx, 0)
		So(err, ShouldBeNil)
		keys, all := stage.Keys(changes)
		So(all, ShouldBeFalse)
		So(keys, ShouldHaveLength, 1)
		So(stage.Recompute(ctx, keys), ShouldBeNil)

		picks, err := st.Find(ctx, store.Pickability, nil)
		So(err, ShouldBeNil)
		So(picks, ShouldHaveLength, 1)
		// 10 + 20 + 0.5*10 + 0.25*8 + 1*3
		So(picks[0]["first_pickability"], ShouldEqual, 40)
		So(picks[0], ShouldNotContainKey, "second_pickability")
		So(picks[0]["overall_pickability"], ShouldEqual, 40)
	})
}

func TestSimPrecision(t *testing.T) {
	Convey("Given one exact scout per robot", t, func() {
		_, _, env := newEnv()
		ms, err := tba.DecodeMatches([]any{tbaMatch(3, []string{"254", "1678", "971"}, []string{"118", "148", "2056"}, 50, 40, "red")})
		So(err, ShouldBeNil)
		rows := []store.Doc{
			{calc.FieldScoutName: "ana", calc.FieldTeamNumber: "254", calc.FieldMatchNumber: 3.0},
			{calc.FieldScoutName: "ben", calc.FieldTeamNumber: "1678", calc.FieldMatchNumber: 3.0},
			{calc.FieldScoutName: "cy", calc.FieldTeamNumber: "971", calc.FieldMatchNumber: 3.0},
			{calc.FieldScoutName: "dee", calc.FieldTeamNumber: "118", calc.FieldMatchNumber: 3.0},
		}
		docs := calc.NewSimPrecision(env).Match(ms[0], rows)

		Convey("Only the fully scouted alliance should be scored", func() {
			So(docs, ShouldHaveLength, 3)
			So(docs[0][calc.FieldScoutName], ShouldEqual, "ana")
			So(docs[0][calc.FieldTeamNumber], ShouldEqual, "254")
			So(docs[0][calc.FieldAllianceRed], ShouldEqual, true)
			So(docs[0]["sim_precision"], ShouldEqual, 0)
		})
	})

	Convey("Scout precision should average the stored rows", t, func() {
		ctx, st, env := newEnv()
		So(st.BulkWrite(ctx, store.SimPrecision, []store.WriteOp{
			store.Upsert(store.Query{calc.FieldScoutName: "ana", calc.FieldMatchNumber: 1},
				store.Doc{calc.FieldScoutName: "ana", calc.FieldMatchNumber: 1, "sim_precision": -2.0, "auto_grid": -2.0, "tele_grid": 0.0}),
			store.Upsert(store.Query{calc.FieldScoutName: "ana", calc.FieldMatchNumber: 2},
				store.Doc{calc.FieldScoutName: "ana", calc.FieldMatchNumber: 2, "sim_precision": 4.0, "auto_grid": 1.0, "tele_grid": 3.0}),
		}), ShouldBeNil)
		stage := calc.NewScoutPrecision(env)
		changes, _ := st.TailChanges(ctx, 0)
		keys, _ := stage.Keys(changes)
		So(keys, ShouldHaveLength, 1)
		So(stage.Recompute(ctx, keys), ShouldBeNil)

		rows, err := st.Find(ctx, store.ScoutPrecision, nil)
		So(err, ShouldBeNil)
		So(rows, ShouldHaveLength, 1)
		So(rows[0]["scout_precision"], ShouldEqual, 3)
		So(rows[0]["matches"], ShouldEqual, 2)
		So(rows[0]["auto_grid"], ShouldEqual, 1.5)
	})
}

func TestStages(t *testing.T) {
	Convey("Stages should run producers before consumers", t, func() {
		_, _, env := newEnv()
		stages := calc.Stages(env, calc.Options{WinChanceMinMatches: 5})
		produced := map[string]bool{store.RawQR: true, store.TBACache: true}
		for _, s := range stages {
			for _, w := range s.Watches() {
				So(produced[w], ShouldBeTrue)
			}
			for _, o := range s.Outputs() {
				produced[o] = true
			}
		}
		So(stages, ShouldHaveLength, 11)
	})
}
