package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"campaign-action-engine/internal/observability"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(observability.Measure)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/campaigns/{campaignID}/events", h.PostEvent)
		r.Get("/campaigns/{campaignID}/counters", h.GetCounters)
		r.Post("/templates/validate", h.ValidateTemplate)
		r.Post("/templates/{templateID}/sessions", h.StartSession)
		r.Get("/sessions/{sessionID}", h.GetSession)
		r.Post("/sessions/{sessionID}/advance", h.Advance)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.MetricsHandler())
	return r
}
