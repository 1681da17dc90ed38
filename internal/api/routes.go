package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(ReadOnlyMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/athletes", h.ListAthletes)

		r.Route("/athletes/{athlete}", func(r chi.Router) {
			r.Get("/sessions", h.ListSessions)
			r.Get("/sessions/{session}", h.GetSession)
			r.Get("/sessions/{session}/track", h.GetTrack)
			r.Get("/sessions/{session}/photos", h.ListPhotos)
			r.Get("/sessions/{session}/photos/{photo}", h.GetPhoto)
			r.Get("/gear", h.GetGear)
			r.Get("/sync", h.SyncStatus)
		})
	})

	return r
}
