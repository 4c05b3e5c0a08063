package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/okian/scoutcalc/internal/adapters/store"
)

// MatchHandler serves alliance predictions.
type MatchHandler struct {
	r Reader
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(r Reader) *MatchHandler {
	return &MatchHandler{r: r}
}

// HandlePredictions handles GET /matches/{match}/predictions: both
// alliances of a match, red first.
func (h *MatchHandler) HandlePredictions(w http.ResponseWriter, r *http.Request) {
	const op = "api.match_predictions"
	match, err := strconv.Atoi(chi.URLParam(r, "match"))
	if err != nil || match < 1 {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}
	docs, err := h.r.Find(r.Context(), store.PredictedAIM, store.Query{"match_number": match})
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if len(docs) == 0 {
		writeFailure(w, NewKind(op, fmt.Errorf("match %d: %w", match, ErrNotFound)))
		return
	}
	out := map[string]store.Doc{}
	for _, d := range docs {
		if store.Bool(d, "alliance_color_is_red") {
			out["red"] = d
		} else {
			out["blue"] = d
		}
	}
	writeJSON(w, http.StatusOK, out)
}
