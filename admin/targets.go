package admin

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/notifile/notifile/journal"
	"github.com/notifile/notifile/status"
)

// TargetSummary joins a target's configuration with its last sync
type TargetSummary struct {
	Name   string               `json:"name"`
	Table  string               `json:"table"`
	Output string               `json:"output"`
	Last   *status.TargetStatus `json:"last,omitempty"`
}

// TargetDetail is the full per-target view
type TargetDetail struct {
	Name          string               `json:"name"`
	Schema        string               `json:"schema"`
	Table         string               `json:"table"`
	Columns       []string             `json:"columns"`
	Template      string               `json:"template"`
	Output        string               `json:"output"`
	ReloadCommand string               `json:"reload_command,omitempty"`
	Last          *status.TargetStatus `json:"last,omitempty"`
	Journal       *journal.Entry       `json:"journal,omitempty"`
}

// handleTargets lists every configured target with its last sync state
func (h *Handlers) handleTargets(w http.ResponseWriter, r *http.Request) {
	registry := h.engine.Registry()

	summaries := make([]TargetSummary, 0, registry.Len())
	for _, tgt := range registry.All() {
		summary := TargetSummary{
			Name:   tgt.Name,
			Table:  fmt.Sprintf("%s.%s", tgt.Schema, tgt.Table),
			Output: tgt.OutputPath,
		}
		if st, ok := h.tracker.Get(tgt.Name); ok {
			summary.Last = &st
		}
		summaries = append(summaries, summary)
	}

	writeJSONResponse(w, summaries)
}

// handleTarget returns one target's configuration, last sync state and
// latest journal entry
func (h *Handlers) handleTarget(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	tgt, ok := h.engine.Registry().Lookup(name)
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("unknown target %q", name))
		return
	}

	detail := TargetDetail{
		Name:          tgt.Name,
		Schema:        tgt.Schema,
		Table:         tgt.Table,
		Columns:       tgt.Columns,
		Template:      tgt.Template.Path(),
		Output:        tgt.OutputPath,
		ReloadCommand: tgt.ReloadCommand,
	}

	if st, ok := h.tracker.Get(name); ok {
		detail.Last = &st
	}

	entry, err := h.journal.Latest(name)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	detail.Journal = entry

	writeJSONResponse(w, detail)
}

// handleTargetContent serves the last written file content recorded in
// the journal
func (h *Handlers) handleTargetContent(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeErrorResponse(w, http.StatusNotImplemented, "journal is disabled")
		return
	}

	name := chi.URLParam(r, "name")
	content, ok, err := h.journal.LastContent(name)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("no recorded content for target %q", name))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write(content); err != nil {
		log.Error().Err(err).Str("target", name).Msg("Failed to write content response")
	}
}

// handleTargetHistory serves the journal's recent runs for one target
func (h *Handlers) handleTargetHistory(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeErrorResponse(w, http.StatusNotImplemented, "journal is disabled")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	name := chi.URLParam(r, "name")
	entries, err := h.journal.History(name, limit)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSONResponse(w, entries)
}
