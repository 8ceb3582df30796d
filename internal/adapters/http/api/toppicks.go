package api

import (
	"net/http"
	"strconv"

	"github.com/okian/tandem/pkg/logger"
)

// TopPicksHandler handles Top Picks requests.
type TopPicksHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewTopPicksHandler creates a new Top Picks handler.
func NewTopPicksHandler(deps Dependencies, l logger.Logger) *TopPicksHandler {
	return &TopPicksHandler{deps: deps, logger: l}
}

// HandleGetTopPicks handles GET /v1/top-picks. The list is stable until
// refresh_at, so clients may cache it that long.
func (h *TopPicksHandler) HandleGetTopPicks(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	res, err := h.deps.TopPicks(r.Context(), user)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	if secs := int(res.RefreshIn.Seconds()); secs > 0 {
		w.Header().Set("Cache-Control", "private, max-age="+strconv.Itoa(secs))
	}
	writeJSON(r.Context(), w, h.logger, http.StatusOK, res)
}
