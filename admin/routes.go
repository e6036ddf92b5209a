package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the admin API router. The health probe and metrics
// scrape stay open; everything else sits behind the token check when a
// token is configured.
func NewRouter(h *Handlers, token string) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", h.handleHealthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(token))

		r.Get("/status", h.handleStatus)

		r.Route("/targets", func(r chi.Router) {
			r.Get("/", h.handleTargets)
			r.Get("/{name}", h.handleTarget)
			r.Get("/{name}/content", h.handleTargetContent)
			r.Get("/{name}/history", h.handleTargetHistory)
		})

		r.Post("/sync", h.handleSync)

		r.Mount("/debug", middleware.Profiler())
	})

	return r
}
