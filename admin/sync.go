package admin

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/notifile/notifile/engine"
)

// handleSync queues a resync request. With no match parameter every
// target resyncs; a glob pattern selects a subset. The request runs on
// the event loop after in-flight work finishes, so 202 means accepted,
// not done.
func (h *Handlers) handleSync(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("match")

	matched, err := h.engine.RequestResync(pattern)
	if errors.Is(err, engine.ErrResyncPending) {
		writeErrorResponse(w, http.StatusConflict, "an identical resync request is already pending")
		return
	}
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Info().Str("match", pattern).Int("targets", matched).Msg("Resync requested via admin API")
	writeJSONStatus(w, http.StatusAccepted, map[string]interface{}{
		"requested": matched,
		"match":     pattern,
	})
}
