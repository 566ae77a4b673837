package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lazycarbs-console/internal/console"
	"lazycarbs-console/internal/handlers"
	"lazycarbs-console/internal/observability"
)

// NewRouter builds the console HTTP surface: health, Prometheus metrics and
// the session endpoints under /api.
func NewRouter(h *console.Handler) http.Handler {

	r := chi.NewRouter()

	r.Use(observability.RequestIDMiddleware)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.LoggingMiddleware)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		handlers.WriteError(w, http.StatusNotFound, "no such endpoint: "+req.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		handlers.WriteError(w, http.StatusMethodNotAllowed, req.Method+" not allowed on "+req.URL.Path)
	})

	r.Get("/health", handlers.Health)

	r.Handle("/metrics", observability.PrometheusHandler())

	console.RegisterRoutes(r, h)

	return r
}
