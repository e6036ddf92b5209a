// Package admin serves the operator HTTP API: daemon status, per-target
// sync state, journal history, and manual resync requests. Everything
// it reads is safe for concurrent access; it never touches the event
// loop directly.
package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/notifile/notifile/db"
	"github.com/notifile/notifile/journal"
	"github.com/notifile/notifile/status"
	"github.com/notifile/notifile/target"
)

// Engine is the slice of the event loop the API needs: the live target
// set and the resync request entry point.
type Engine interface {
	Registry() *target.Registry
	RequestResync(pattern string) (int, error)
}

// ConnStater reports the notification connection state
type ConnStater interface {
	State() db.ConnState
}

// Handlers serves the admin API endpoints
type Handlers struct {
	instance string
	engine   Engine
	listener ConnStater
	tracker  *status.Tracker
	journal  *journal.Store // nil when disabled
	metrics  http.Handler   // nil when prometheus is disabled
}

// NewHandlers creates the admin handler set. journal and metrics may be
// nil when those subsystems are disabled.
func NewHandlers(instance string, engine Engine, listener ConnStater,
	tracker *status.Tracker, store *journal.Store, metrics http.Handler) *Handlers {
	return &Handlers{
		instance: instance,
		engine:   engine,
		listener: listener,
		tracker:  tracker,
		journal:  store,
		metrics:  metrics,
	}
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

// writeJSONStatus writes a JSON response with an explicit status code
func writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"data": data,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"error": message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// parseLimit parses the limit query parameter with defaults
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 20, nil // default
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %w", err)
	}

	if limit < 1 {
		return 0, fmt.Errorf("limit must be positive")
	}

	if limit > 1000 {
		return 0, fmt.Errorf("limit cannot exceed 1000")
	}

	return limit, nil
}
