package api

import (
	"itinerary-route-service/internal/api/handlers"
	"itinerary-route-service/internal/platform/obs"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(svc handlers.RouteService, log *zap.Logger, maxDays int) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(obs.MetricsMiddleware)

	routes := &handlers.RouteHandler{Service: svc, MaxDays: maxDays}

	r.Get("/health", handlers.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/plans/{planID}/routes", func(r chi.Router) {
		r.Post("/", routes.Compute)
		r.Get("/", routes.List)
		r.Get("/{version}", routes.Get)
		r.Patch("/{version}", routes.Update)
		r.Post("/{version}/regenerate", routes.Regenerate)
	})
	r.Get("/plans/{planID}/statistics", routes.Statistics)

	return r
}
