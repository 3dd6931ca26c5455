// Package httpapi wires the ops surface's chi router: request ID,
// structured logging, and rate limiting ahead of the handlers in
// server/internal/http/handlers.
package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

// NewRouter builds the chi router for cmd/statusd.
func NewRouter(app *handlers.App, logger zerolog.Logger, rateLimitPerMin int) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.RateLimit(rateLimitPerMin, time.Minute))

	r.Get("/healthz", app.Health)
	r.Get("/jobs/{id}", app.Job)
	r.Get("/queue/stats", app.QueueStats)

	return r
}
