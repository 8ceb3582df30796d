// Package api exposes the match core over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/tandem/internal/app"
	"github.com/okian/tandem/internal/domain/errs"
	"github.com/okian/tandem/internal/domain/milestone"
	"github.com/okian/tandem/internal/domain/model"
	"github.com/okian/tandem/internal/domain/ranking"
	"github.com/okian/tandem/pkg/logger"
)

// HeaderUserID carries the authenticated caller. It is set by the gateway in
// front of this service after the session has been verified.
const HeaderUserID = "X-User-ID"

// Dependencies required by HTTP handlers.
type Dependencies interface {
	RecordInterest(ctx context.Context, actorID, targetID string, disposition model.Disposition, priority bool) (service.MatchOutcome, error)
	RecordMilestone(ctx context.Context, matchID, key string, metadata map[string]any) (milestone.Outcome, error)
	RecordProgress(ctx context.Context, matchID string, metric milestone.Metric, count int) ([]milestone.Outcome, error)
	JourneyProgress(ctx context.Context, matchID string) (milestone.Journey, error)
	TopPicks(ctx context.Context, userID string) (ranking.Result, error)
	GetMatch(ctx context.Context, userID, matchID string) (model.Match, error)
	ListMatches(ctx context.Context, userID string) ([]model.Match, error)
	Unmatch(ctx context.Context, userID, matchID string) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	interestHandler *InterestHandler
	matchHandler    *MatchHandler
	topPicksHandler *TopPicksHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, l logger.Logger) *Server {
	if l == nil {
		l = logger.Nop()
	}
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider, l),
		interestHandler: NewInterestHandler(deps, l),
		matchHandler:    NewMatchHandler(deps, l),
		topPicksHandler: NewTopPicksHandler(deps, l),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /v1/interests", MetricsMiddleware(s.interestHandler.HandlePostInterest, "interests"))
	mux.HandleFunc("GET /v1/top-picks", MetricsMiddleware(s.topPicksHandler.HandleGetTopPicks, "top_picks"))

	mux.HandleFunc("GET /v1/matches", MetricsMiddleware(s.matchHandler.HandleList, "matches"))
	mux.HandleFunc("GET /v1/matches/{id}", MetricsMiddleware(s.matchHandler.HandleGet, "match"))
	mux.HandleFunc("DELETE /v1/matches/{id}", MetricsMiddleware(s.matchHandler.HandleUnmatch, "match"))
	mux.HandleFunc("GET /v1/matches/{id}/journey", MetricsMiddleware(s.matchHandler.HandleJourney, "journey"))
	mux.HandleFunc("POST /v1/matches/{id}/milestones", MetricsMiddleware(s.matchHandler.HandleMilestone, "milestones"))
	mux.HandleFunc("POST /v1/matches/{id}/progress", MetricsMiddleware(s.matchHandler.HandleProgress, "progress"))
}

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Remaining *int   `json:"remaining,omitempty"`
}

// writeJSON encodes v before the header goes out, so a value that cannot be
// encoded turns into a 500 rather than a truncated 200.
func writeJSON(ctx context.Context, w http.ResponseWriter, l logger.Logger, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		l.Error(ctx, "encode response failed", logger.Int("status", status), logger.Error(err))
		w.Header().Del("Cache-Control")
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	writeBody(w, status, body)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	body, _ := json.Marshal(errorResponse{Code: code, Message: msg}) // strings only, cannot fail
	writeBody(w, status, body)
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// writeDomainError maps a core error kind to its HTTP status.
func writeDomainError(ctx context.Context, w http.ResponseWriter, l logger.Logger, err error) {
	var quota *errs.QuotaError
	switch {
	case errors.As(err, &quota):
		remaining := quota.Remaining
		writeJSON(ctx, w, l, http.StatusTooManyRequests, errorResponse{
			Code:      "quota_exceeded",
			Message:   err.Error(),
			Remaining: &remaining,
		})
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, errs.ErrSelfReference):
		writeError(w, http.StatusBadRequest, "self_reference", err)
	case errors.Is(err, errs.ErrUnknownMilestone):
		writeError(w, http.StatusBadRequest, "unknown_milestone", err)
	case errors.Is(err, errs.ErrInvalidInput), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, errs.ErrStorage):
		l.Warn(ctx, "storage unavailable", logger.Error(err))
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "unavailable", errs.ErrStorage)
	case errors.Is(err, errs.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	default:
		l.Error(ctx, "request failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

// userID returns the caller or writes 401.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(HeaderUserID)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", ErrMissingUser)
		return "", false
	}
	return id, true
}
