package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/railmiles/internal/journeys"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *journeys.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/dashboard", h.Dashboard)

	r.Get("/journeys", h.ListJourneys)
	r.With(RequireJSON).Post("/journeys", h.CreateJourney)
	r.Get("/journeys/processor/{id}", h.ProcessorStream)
	r.Get("/journeys/{id}", h.GetJourney)
	r.Delete("/journeys/{id}", h.DeleteJourney)
	r.Post("/journeys/{id}/return", h.CreateReturnJourney)

	r.Get("/stations/{code}", h.GetStation)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
