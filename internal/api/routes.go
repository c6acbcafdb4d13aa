package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router with the standard middleware stack
// and every API route.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/events", h.PostEvent)

		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/metrics", h.GetMetrics)
			r.Get("/health", h.GetHealth)
			r.Get("/limits", h.GetLimits)
			r.Post("/reserve", h.PostReserve)
			r.Post("/validate", h.PostValidate)
		})

		r.Post("/domains/{domain}/verify", h.PostVerifyDomain)
		r.Post("/spam-check", h.PostSpamCheck)
	})

	return r
}
