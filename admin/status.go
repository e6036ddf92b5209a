package admin

import (
	"net/http"
	"time"

	"github.com/notifile/notifile/db"
	"github.com/notifile/notifile/status"
)

// StatusResponse is the /status document
type StatusResponse struct {
	Instance      string          `json:"instance"`
	State         string          `json:"state"`
	StartedAt     time.Time       `json:"started_at"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	ConnectedAt   *time.Time      `json:"connected_at,omitempty"`
	Targets       int             `json:"targets"`
	Counters      status.Counters `json:"counters"`
}

// handleHealthz is the liveness and readiness probe. Ready means the
// notification connection is established and listening.
func (h *Handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	state := h.listener.State()
	healthy := state == db.StateListening

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}

	writeJSONStatus(w, code, map[string]interface{}{
		"healthy": healthy,
		"state":   state.String(),
	})
}

// handleStatus returns the daemon-level view: connection state, uptime
// and event counters
func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Instance:      h.instance,
		State:         h.listener.State().String(),
		StartedAt:     h.tracker.StartedAt(),
		UptimeSeconds: int64(time.Since(h.tracker.StartedAt()).Seconds()),
		Targets:       h.engine.Registry().Len(),
		Counters:      h.tracker.Counters(),
	}

	if connected := h.tracker.ConnectedAt(); !connected.IsZero() {
		resp.ConnectedAt = &connected
	}

	writeJSONResponse(w, resp)
}
