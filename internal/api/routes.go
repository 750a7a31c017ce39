package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required)
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.store))

			r.Get("/activities", h.ListActivities)
			r.Post("/activities/sync", h.SyncActivities)
			r.Get("/activity-kinds", h.ListActivityKinds)
			r.Post("/activity-kinds/sync", h.SyncActivityKinds)
			r.Get("/activity-logs", h.ListActivityLogs)
			r.Post("/activity-logs/sync", h.SyncActivityLogs)
			r.Get("/goals", h.ListGoals)
			r.Post("/goals/sync", h.SyncGoals)
			r.Get("/tasks", h.ListTasks)
			r.Post("/tasks/sync", h.SyncTasks)

			r.Post("/sync/check-duplicates", h.CheckDuplicates)
			r.Get("/sync/status", h.SyncStatus)
			r.Post("/sync/enqueue", h.Enqueue)
			r.Post("/sync/process", h.ProcessQueue)
			r.Post("/sync/batch", h.SyncBatch)
			r.Get("/sync/snapshot", h.Snapshot)
		})
	})

	return r
}
