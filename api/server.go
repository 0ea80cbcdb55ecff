/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the mini-app frontend

ROUTE GROUPS:
  /api/users/*    Identity, stats, outcomes, rewards, tasks
  /api/admin/*    Statistics export
  /ws             WebSocket event feed

SECURITY NOTE:
  No authentication middleware. The engine trusts the user ID in the
  path; the mini-app host in front of it owns auth.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetUser)
				r.Get("/stats", h.GetStats)
				r.Post("/stats/reset", h.ResetStats)
				r.Post("/outcomes", h.ApplyOutcome)

				r.Route("/rewards", func(r chi.Router) {
					r.Get("/", h.ListRewards)
					r.Post("/", h.CreateReward)
					r.Delete("/{rewardID}", h.DeleteReward)
					r.Post("/{rewardID}/redeem", h.RedeemReward)
				})

				r.Route("/tasks", func(r chi.Router) {
					r.Get("/", h.ListTasks)
					r.Post("/", h.CreateTask)
					r.Put("/{taskID}", h.UpdateTask)
					r.Delete("/{taskID}", h.DeleteTask)
					r.Post("/{taskID}/complete", h.CompleteTask)
					r.Post("/{taskID}/fail", h.FailTask)
				})
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/export", h.ExportStats)
		})
	})

	if h.Events != nil {
		r.Get("/ws", h.Events.HandleWS)
	}

	return r
}
