// internal/httpapi/router.go
package httpapi

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"

	"github.com/vespa-academy/homepage-backend/internal/knack"
)

// NewRouter wires the public endpoints. Every route permits cross-origin
// calls; the cors middleware answers preflight OPTIONS with 200 and no body.
func NewRouter(h *Handler, logger *slog.Logger) chi.Router {
	requestLogger := httplog.NewLogger("homepage-backend", httplog.Options{
		LogLevel: slog.LevelInfo,
		Concise:  true,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httplog.RequestLogger(requestLogger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", knack.HeaderApplicationID, knack.HeaderAPIKey},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Post("/bulk-update", h.BulkUpdate)
	r.Get("/job-status/{jobID}", h.JobStatus)
	// bare path still reaches the handler so a missing id answers 400, not 404
	r.Get("/job-status/", h.JobStatus)
	r.Post("/consent-submit", h.ConsentSubmit)

	return r
}
