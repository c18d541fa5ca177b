package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maintly/pm-engine/internal/auth"
	"github.com/maintly/pm-engine/internal/middleware"
)

// NewRouter wires the full HTTP surface. Trigger and reading endpoints accept
// scheduler tokens; administrative endpoints require admin.
func NewRouter(pmHandler *PMHandler, adminHandler *AdminHandler, authMW *middleware.AuthMiddleware) *chi.Mux {
	r := chi.NewRouter()

	rateLimiter := middleware.NewRateLimitMiddleware()
	r.Use(rateLimiter.RateLimit(120, 60))
	r.Use(authMW.Authenticate)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireRole(auth.RoleScheduler))
			r.Post("/pm/run", pmHandler.RunFullPass)
			r.Post("/pm/run-meters", pmHandler.RunMeterPass)
			r.Post("/pm/records/{key}/defer", pmHandler.DeferRecord)
			r.Post("/pm/records/{key}/cancel", pmHandler.CancelRecord)
			r.Post("/pm/records/{key}/complete", pmHandler.CompleteRecord)
			r.Get("/pm/records", pmHandler.ListRecords)
			r.Post("/meters/readings", adminHandler.SubmitReading)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireRole(auth.RoleAdmin))
			r.Post("/pm/templates", adminHandler.CreateTemplate)
			r.Post("/pm/rules", adminHandler.CreateRule)
			r.Post("/meters", adminHandler.CreateMeter)
			r.Post("/organizations", adminHandler.CreateOrganization)
		})
	})

	return r
}
