package api

import (
	"net/http"
	"sort"

	"github.com/okian/scoutcalc/internal/adapters/store"
)

// ScoutsHandler serves scout precision.
type ScoutsHandler struct {
	r Reader
}

// NewScoutsHandler creates a new scouts handler.
func NewScoutsHandler(r Reader) *ScoutsHandler {
	return &ScoutsHandler{r: r}
}

// HandleList handles GET /scouts: most precise scouts first.
func (h *ScoutsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	docs, err := h.r.Find(r.Context(), store.ScoutPrecision, nil)
	if err != nil {
		writeFailure(w, Wrap("api.list_scouts", err))
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		a, _ := store.Float(docs[i], "scout_precision")
		b, _ := store.Float(docs[j], "scout_precision")
		if a != b {
			return a < b
		}
		return store.Str(docs[i], "scout_name") < store.Str(docs[j], "scout_name")
	})
	if docs == nil {
		docs = []store.Doc{}
	}
	writeJSON(w, http.StatusOK, docs)
}
