package api

import (
	"net/http"

	"github.com/okian/tandem/internal/domain/milestone"
	"github.com/okian/tandem/pkg/logger"
)

type milestoneRequest struct {
	Key      string         `json:"key" validate:"required,max=64"`
	Metadata map[string]any `json:"metadata"`
}

type progressRequest struct {
	Metric string `json:"metric" validate:"required,oneof=messages days_active"`
	Count  int    `json:"count" validate:"min=0"`
}

type progressResponse struct {
	Outcomes []milestone.Outcome `json:"outcomes"`
}

// MatchHandler handles requests on a caller's matches. Matches the caller
// does not take part in answer 404.
type MatchHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(deps Dependencies, l logger.Logger) *MatchHandler {
	return &MatchHandler{deps: deps, logger: l}
}

// HandleList handles GET /v1/matches.
func (h *MatchHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	list, err := h.deps.ListMatches(r.Context(), user)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(r.Context(), w, h.logger, http.StatusOK, list)
}

// HandleGet handles GET /v1/matches/{id}.
func (h *MatchHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	m, err := h.deps.GetMatch(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(r.Context(), w, h.logger, http.StatusOK, m)
}

// HandleUnmatch handles DELETE /v1/matches/{id}.
func (h *MatchHandler) HandleUnmatch(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.deps.Unmatch(r.Context(), user, r.PathValue("id")); err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleJourney handles GET /v1/matches/{id}/journey.
func (h *MatchHandler) HandleJourney(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}
	j, err := h.deps.JourneyProgress(r.Context(), id)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(r.Context(), w, h.logger, http.StatusOK, j)
}

// HandleMilestone handles POST /v1/matches/{id}/milestones.
func (h *MatchHandler) HandleMilestone(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req milestoneRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	out, err := h.deps.RecordMilestone(r.Context(), id, req.Key, req.Metadata)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	status := http.StatusCreated
	if out.Kind == milestone.AlreadyApplied {
		status = http.StatusOK
	}
	writeJSON(r.Context(), w, h.logger, status, out)
}

// HandleProgress handles POST /v1/matches/{id}/progress.
func (h *MatchHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req progressRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	outs, err := h.deps.RecordProgress(r.Context(), id, milestone.Metric(req.Metric), req.Count)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(r.Context(), w, h.logger, http.StatusOK, progressResponse{Outcomes: outs})
}

// authorize checks that the caller takes part in the match named by the path.
func (h *MatchHandler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := userID(w, r)
	if !ok {
		return "", false
	}
	id := r.PathValue("id")
	if _, err := h.deps.GetMatch(r.Context(), user, id); err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return "", false
	}
	return id, true
}
