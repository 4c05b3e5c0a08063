package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/schema"
	. "github.com/smartystreets/goconvey/convey"
)

func collections(t *testing.T) *schema.Collections {
	t.Helper()
	set, err := schema.Default()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return set.Collections
}

// frozenClock returns the same instant on every call so the store has to
// break timestamp ties itself.
func frozenClock() func() time.Time {
	at := time.Unix(1_700_000_000, 0)
	return func() time.Time { return at }
}

type backend struct {
	name string
	open func(t *testing.T) store.Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) store.Store {
			return store.NewMemory("2023caln", collections(t), store.WithClock(frozenClock()))
		}},
		{"sqlite", func(t *testing.T) store.Store {
			path := filepath.Join(t.TempDir(), "scout.db")
			s, err := store.NewSQLite(context.Background(), path, "2023caln", collections(t), store.WithClock(frozenClock()))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
	}
}

func TestStoreBehaviour(t *testing.T) {
	for _, b := range backends() {
		b := b
		Convey("Given a "+b.name+" store", t, func() {
			ctx := context.Background()
			s := b.open(t)

			Convey("Inserted documents should be found by equality", func() {
				err := s.InsertDocuments(ctx, store.ObjTIM, []store.Doc{
					{"team_number": "254", "match_number": 1, "auto_cone_high": 2},
					{"team_number": "254", "match_number": 2, "auto_cone_high": 0},
					{"team_number": "1678", "match_number": 1, "auto_cone_high": 1},
				})
				So(err, ShouldBeNil)

				docs, err := s.Find(ctx, store.ObjTIM, store.Query{"team_number": "254"})
				So(err, ShouldBeNil)
				So(docs, ShouldHaveLength, 2)
				So(docs[0]["match_number"], ShouldEqual, 1.0)

				docs, err = s.Find(ctx, store.ObjTIM, store.Query{"match_number": 1, "team_number": "1678"})
				So(err, ShouldBeNil)
				So(docs, ShouldHaveLength, 1)
				n, _ := store.Int(docs[0], "auto_cone_high")
				So(n, ShouldEqual, 1)

				all, err := s.Find(ctx, store.ObjTIM, nil)
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 3)
			})

			Convey("A unique index should reject a second document with the same key", func() {
				doc := store.Doc{"team_number": "254", "match_number": 1}
				So(s.InsertDocuments(ctx, store.ObjTIM, []store.Doc{doc}), ShouldBeNil)
				err := s.InsertDocuments(ctx, store.ObjTIM, []store.Doc{doc})
				So(errors.Is(err, store.ErrDuplicateKey), ShouldBeTrue)

				docs, _ := s.Find(ctx, store.ObjTIM, nil)
				So(docs, ShouldHaveLength, 1)
			})

			Convey("UpdateDocument should insert then merge dotted fields", func() {
				key := store.Query{"data": "+A1"}
				So(s.UpdateDocument(ctx, store.RawQR, store.Doc{"blocklisted": false}, key), ShouldBeNil)
				So(s.UpdateDocument(ctx, store.RawQR, store.Doc{"override.auto_cone_high": 3}, key), ShouldBeNil)
				So(s.UpdateDocument(ctx, store.RawQR, store.Doc{"override.scout_name": "ana"}, key), ShouldBeNil)

				docs, err := s.Find(ctx, store.RawQR, key)
				So(err, ShouldBeNil)
				So(docs, ShouldHaveLength, 1)
				So(docs[0]["blocklisted"], ShouldEqual, false)
				So(docs[0]["override"], ShouldResemble, map[string]any{"auto_cone_high": 3.0, "scout_name": "ana"})

				found, _ := s.Find(ctx, store.RawQR, store.Query{"override.scout_name": "ana"})
				So(found, ShouldHaveLength, 1)

				changes, err := s.TailChanges(ctx, 0)
				So(err, ShouldBeNil)
				So(changes, ShouldHaveLength, 3)
				So(changes[0].Op, ShouldEqual, store.OpInsert)
				So(changes[1].Op, ShouldEqual, store.OpUpdate)
				So(changes[2].Namespace, ShouldEqual, "2023caln.raw_qr")
			})

			Convey("Raw collections should never be deleted from", func() {
				So(s.InsertDocuments(ctx, store.RawQR, []store.Doc{{"data": "+A1"}}), ShouldBeNil)
				So(s.DeleteData(ctx, store.RawQR, nil), ShouldBeNil)
				docs, _ := s.Find(ctx, store.RawQR, nil)
				So(docs, ShouldHaveLength, 1)
			})

			Convey("BulkWrite should replace, insert and delete by key", func() {
				So(s.InsertDocuments(ctx, store.ObjTeam, []store.Doc{
					{"team_number": "254", "stale": true, "matches_played": 1},
					{"team_number": "971", "matches_played": 4},
				}), ShouldBeNil)

				err := s.BulkWrite(ctx, store.ObjTeam, []store.WriteOp{
					store.Upsert(store.Query{"team_number": "254"}, store.Doc{"matches_played": 2}),
					store.Upsert(store.Query{"team_number": "1678"}, store.Doc{"matches_played": 1}),
					store.Delete(store.Query{"team_number": "971"}),
				})
				So(err, ShouldBeNil)

				docs, _ := s.Find(ctx, store.ObjTeam, nil)
				So(docs, ShouldHaveLength, 2)
				So(docs[0], ShouldResemble, store.Doc{"team_number": "254", "matches_played": 2.0})
				So(docs[1]["team_number"], ShouldEqual, "1678")

				changes, _ := s.TailChanges(ctx, 0)
				ops := make([]store.Op, 0, len(changes))
				for _, c := range changes {
					ops = append(ops, c.Op)
				}
				So(ops, ShouldResemble, []store.Op{store.OpInsert, store.OpInsert, store.OpUpdate, store.OpInsert, store.OpDelete})
				So(changes[4].Doc["team_number"], ShouldEqual, "971")
			})

			Convey("A failing bulk write should leave the collection untouched", func() {
				err := s.BulkWrite(ctx, store.ObjTeam, []store.WriteOp{
					{Kind: store.WriteInsert, Doc: store.Doc{"team_number": "254"}},
					{Kind: store.WriteInsert, Doc: store.Doc{"team_number": "254"}},
				})
				So(errors.Is(err, store.ErrDuplicateKey), ShouldBeTrue)
				docs, _ := s.Find(ctx, store.ObjTeam, nil)
				So(docs, ShouldBeEmpty)
				changes, _ := s.TailChanges(ctx, 0)
				So(changes, ShouldBeEmpty)
			})

			Convey("Bulk writes to unknown collections should be dropped", func() {
				err := s.BulkWrite(ctx, "nope", []store.WriteOp{store.Delete(nil)})
				So(err, ShouldBeNil)
				_, err = s.Find(ctx, "nope", nil)
				So(errors.Is(err, store.ErrUnknownCollection), ShouldBeTrue)
			})

			Convey("The change log should be strictly increasing and tail after a timestamp", func() {
				for i := 0; i < 5; i++ {
					So(s.InsertDocuments(ctx, store.SubjTIM, []store.Doc{{"team_number": "254", "match_number": i}}), ShouldBeNil)
				}
				changes, err := s.TailChanges(ctx, 0)
				So(err, ShouldBeNil)
				So(changes, ShouldHaveLength, 5)
				for i := 1; i < len(changes); i++ {
					So(changes[i].Timestamp, ShouldBeGreaterThan, changes[i-1].Timestamp)
				}
				rest, _ := s.TailChanges(ctx, changes[2].Timestamp)
				So(rest, ShouldHaveLength, 2)
				So(rest[0].Doc["match_number"], ShouldEqual, 3.0)
			})

			Convey("The TBA cache should only write when the response changes", func() {
				url := "event/2023caln/matches"
				_, ok, err := s.GetTBACache(ctx, url)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)

				data := []any{map[string]any{"key": "2023caln_qm1"}}
				So(s.UpdateTBACache(ctx, url, data, "W/1"), ShouldBeNil)
				So(s.UpdateTBACache(ctx, url, data, "W/1"), ShouldBeNil)

				entry, ok, err := s.GetTBACache(ctx, url)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(entry.ETag, ShouldEqual, "W/1")
				So(entry.Data, ShouldResemble, data)

				changes, _ := s.TailChanges(ctx, 0)
				So(changes, ShouldHaveLength, 1)

				So(s.UpdateTBACache(ctx, url, data, "W/2"), ShouldBeNil)
				changes, _ = s.TailChanges(ctx, 0)
				So(changes, ShouldHaveLength, 2)
			})
		})
	}
}

func TestDocHelpers(t *testing.T) {
	Convey("Given a nested document", t, func() {
		d := store.Doc{"team_number": "254", "match_number": 12.0, "score_breakdown": map[string]any{"red": map[string]any{"rp": 2.0}}}

		Convey("Dotted paths should resolve", func() {
			v, ok := store.Get(d, "score_breakdown.red.rp")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 2.0)
			_, ok = store.Get(d, "score_breakdown.blue.rp")
			So(ok, ShouldBeFalse)
		})

		Convey("Typed accessors should convert", func() {
			n, ok := store.Int(d, "match_number")
			So(ok, ShouldBeTrue)
			So(n, ShouldEqual, 12)
			So(store.Str(d, "match_number"), ShouldEqual, "12")
			So(store.Bool(d, "missing"), ShouldBeFalse)
		})

		Convey("Set should create intermediate objects", func() {
			store.Set(d, "override.x", 1)
			So(d["override"], ShouldResemble, map[string]any{"x": 1})
		})

		Convey("Matches should compare numbers across types", func() {
			So(store.Matches(d, store.Query{"match_number": 12}), ShouldBeTrue)
			So(store.Matches(d, store.Query{"match_number": 13}), ShouldBeFalse)
			So(store.Matches(d, store.Query{"absent": nil}), ShouldBeTrue)
		})
	})
}
