// Package api serves the derived collections to strategists over HTTP.
// Every route is read-only.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/okian/scoutcalc/internal/adapters/http/swagger"
	"github.com/okian/scoutcalc/internal/adapters/store"
)

const requestTimeout = 30 * time.Second

// Reader is the store surface the handlers read from.
type Reader interface {
	Find(ctx context.Context, coll string, q store.Query) ([]store.Doc, error)
}

// Server wires HTTP routes for the read API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	teamsHandler  *TeamsHandler
	matchHandler  *MatchHandler
	scoutsHandler *ScoutsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(r Reader, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		teamsHandler:  NewTeamsHandler(r),
		matchHandler:  NewMatchHandler(r),
		scoutsHandler: NewScoutsHandler(r),
	}
}

// Router returns a chi router with every route attached.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", s.statsHandler.HandleStats)
	r.Get("/teams", s.teamsHandler.HandleList)
	r.Get("/teams/{team}", s.teamsHandler.HandleGet)
	r.Get("/picklist", s.teamsHandler.HandlePicklist)
	r.Get("/matches/{match}/predictions", s.matchHandler.HandlePredictions)
	r.Get("/scouts", s.scoutsHandler.HandleList)
	swagger.Register(r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err onto a status by its sentinel kind.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
