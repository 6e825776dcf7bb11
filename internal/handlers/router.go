package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires every API route.
func NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", HealthCheck)
		r.Get("/logs", GetServerLogs)
		r.Delete("/logs", ClearServerLogs)

		r.Get("/connections", ListConnections)
		r.Post("/connections", SaveConnection)
		r.Post("/connections/import", ImportConnections)
		r.Delete("/connections/{id}", DeleteConnection)

		r.Get("/tabs", ListTabs)
		r.Post("/tabs", OpenTab)
		r.Delete("/tabs", CloseAllTabs)
		r.Get("/tabs/{key}", GetTab)
		r.Delete("/tabs/{key}", CloseTab)
		r.Put("/tabs/{key}/active", ActivateTab)
		r.Post("/tabs/{key}/retry", RetryTab)
		r.Post("/tabs/{key}/input", SendTabInput)
		r.Post("/tabs/{key}/resize", ResizeTab)
		r.Get("/tabs/{key}/screen.png", TabScreen)
		r.Get("/tabs/{key}/history", TabHistory)
		r.Get("/tabs/{key}/stream", StreamTab)
	})

	return r
}
