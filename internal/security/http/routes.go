package securityhttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the monitoring endpoints. view guards the read
// endpoints and manage guards cleanup; either may be nil.
func (h *Handler) MountRoutes(r chi.Router, view, manage func(http.Handler) http.Handler) {
	if h == nil || h.recorder == nil {
		return
	}
	r.Route("/security", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if view != nil {
				r.Use(view)
			}
			r.Get("/metrics", h.handleMetrics)
			r.Get("/events", h.handleEvents)
			r.Get("/dashboard", h.handleDashboard)
			r.Get("/suspicious-ips", h.handleSuspiciousIPs)
		})
		r.Group(func(r chi.Router) {
			if manage != nil {
				r.Use(manage)
			}
			r.Post("/cleanup", h.handleCleanup)
		})
	})
}
