package api

import (
	"net/http"

	"github.com/okian/tandem/internal/domain/model"
	"github.com/okian/tandem/pkg/logger"
)

type interestRequest struct {
	TargetID    string `json:"target_id" validate:"required,max=64"`
	Disposition string `json:"disposition" validate:"required,oneof=like pass"`
	Priority    bool   `json:"priority"`
}

// InterestHandler handles interest requests.
type InterestHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewInterestHandler creates a new interest handler.
func NewInterestHandler(deps Dependencies, l logger.Logger) *InterestHandler {
	return &InterestHandler{deps: deps, logger: l}
}

// HandlePostInterest handles POST /v1/interests. A repeated request returns
// the same outcome with already_recorded set.
func (h *InterestHandler) HandlePostInterest(w http.ResponseWriter, r *http.Request) {
	actor, ok := userID(w, r)
	if !ok {
		return
	}
	var req interestRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	out, err := h.deps.RecordInterest(r.Context(), actor, req.TargetID, model.Disposition(req.Disposition), req.Priority)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	status := http.StatusCreated
	if out.AlreadyRecorded {
		status = http.StatusOK
	}
	writeJSON(r.Context(), w, h.logger, status, out)
}
