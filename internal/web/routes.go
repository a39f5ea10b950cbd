package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-folio/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	runsHandler := handlers.NewRunsHandler(s.sorter, s.runs, s.logger)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.Health(s.runs))

		// Event streams are long-lived and stay outside the request timeout
		r.Get("/runs/{runId}/events", runsHandler.Events)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(time.Minute))

			r.Get("/runs", runsHandler.List)
			r.Post("/runs/sort", runsHandler.StartSort)
			r.Post("/runs/discover", runsHandler.StartDiscover)
			r.Get("/runs/{runId}", runsHandler.Status)
			r.Delete("/runs/{runId}", runsHandler.Cancel)
			r.Post("/runs/{runId}/resume", runsHandler.Resume)

			r.Get("/runs/{runId}/portraits", runsHandler.Portraits)
			r.Get("/runs/{runId}/portraits/{index}/image", runsHandler.PortraitImage)
			r.Put("/runs/{runId}/portraits/{index}", runsHandler.TagPortrait)
		})
	})
}
