package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/okian/scoutcalc/internal/adapters/store"
)

const defaultPicklistField = "first_pickability"

// teamCollections are merged, in order, into one team view.
var teamCollections = []string{
	store.ObjTeam, store.SubjTeam, store.TBATeam, store.Pickability, store.PredictedTeam,
}

// TeamsHandler serves team aggregates and the picklist.
type TeamsHandler struct {
	r Reader
}

// NewTeamsHandler creates a new teams handler.
func NewTeamsHandler(r Reader) *TeamsHandler {
	return &TeamsHandler{r: r}
}

// HandleList handles GET /teams: every team's merged aggregates.
func (h *TeamsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	teams, err := h.merged(r.Context(), nil)
	if err != nil {
		writeFailure(w, Wrap("api.list_teams", err))
		return
	}
	writeJSON(w, http.StatusOK, sortedTeams(teams))
}

// HandleGet handles GET /teams/{team}: one team's aggregates and its
// consolidated match records.
func (h *TeamsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_team"
	team := chi.URLParam(r, "team")
	q := store.Query{"team_number": team}
	teams, err := h.merged(r.Context(), q)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	doc, ok := teams[team]
	if !ok {
		writeFailure(w, NewKind(op, fmt.Errorf("team %s: %w", team, ErrNotFound)))
		return
	}
	tims, err := h.r.Find(r.Context(), store.ObjTIM, q)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	sort.SliceStable(tims, func(i, j int) bool {
		a, _ := store.Int(tims[i], "match_number")
		b, _ := store.Int(tims[j], "match_number")
		return a < b
	})
	doc["tims"] = tims
	writeJSON(w, http.StatusOK, doc)
}

// HandlePicklist handles GET /picklist?by=<field>: pickability docs,
// best first. Teams without the field are left out.
func (h *TeamsHandler) HandlePicklist(w http.ResponseWriter, r *http.Request) {
	const op = "api.picklist"
	by := r.URL.Query().Get("by")
	if by == "" {
		by = defaultPicklistField
	}
	docs, err := h.r.Find(r.Context(), store.Pickability, nil)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	type entry struct {
		doc store.Doc
		v   float64
	}
	var ranked []entry
	for _, d := range docs {
		if v, ok := store.Float(d, by); ok {
			ranked = append(ranked, entry{d, v})
		}
	}
	if len(ranked) == 0 && len(docs) > 0 {
		writeFailure(w, NewKind(op, fmt.Errorf("unknown field %q: %w", by, ErrBadRequest)))
		return
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].v != ranked[j].v {
			return ranked[i].v > ranked[j].v
		}
		return teamLess(store.Str(ranked[i].doc, "team_number"), store.Str(ranked[j].doc, "team_number"))
	})
	out := make([]store.Doc, len(ranked))
	for i, e := range ranked {
		out[i] = store.Doc{"rank": i + 1, "team_number": e.doc["team_number"], by: e.v}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *TeamsHandler) merged(ctx context.Context, q store.Query) (map[string]store.Doc, error) {
	teams := map[string]store.Doc{}
	for _, coll := range teamCollections {
		docs, err := h.r.Find(ctx, coll, q)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", coll, err)
		}
		for _, d := range docs {
			team := store.Str(d, "team_number")
			if team == "" {
				continue
			}
			m, ok := teams[team]
			if !ok {
				m = store.Doc{}
				teams[team] = m
			}
			for k, v := range d {
				m[k] = v
			}
		}
	}
	return teams, nil
}

func sortedTeams(teams map[string]store.Doc) []store.Doc {
	keys := make([]string, 0, len(teams))
	for k := range teams {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return teamLess(keys[i], keys[j]) })
	out := make([]store.Doc, len(keys))
	for i, k := range keys {
		out[i] = teams[k]
	}
	return out
}

// teamLess orders team numbers numerically, falling back to text.
func teamLess(a, b string) bool {
	x, errA := strconv.Atoi(a)
	y, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return x < y
	}
	return a < b
}
