package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health and metrics (no auth, consumed by monitoring)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Shade catalog and commands
			r.Route("/shades", func(r chi.Router) {
				r.Get("/", s.handleListShades)
				r.Post("/", s.handleCreateShade)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetShade)
					r.Put("/", s.handleUpdateShade)
					r.Delete("/", s.handleDeleteShade)
					r.Post("/command", s.handleShadeCommand)
				})
			})

			// Scene catalog and activation
			r.Route("/scenes", func(r chi.Router) {
				r.Get("/", s.handleListScenes)

				r.Route("/{name}", func(r chi.Router) {
					r.Get("/", s.handleGetScene)
					r.Put("/", s.handleSaveScene)
					r.Delete("/", s.handleDeleteScene)
					r.Post("/activate", s.handleActivateScene)
				})
			})

			// Live task control
			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", s.handleListTasks)
				r.Delete("/{taskID}", s.handleCancelTask)
			})

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]string{}

	if s.mqtt != nil {
		if s.mqtt.IsConnected() {
			checks["mqtt"] = "connected"
		} else {
			checks["mqtt"] = "disconnected"
			status = "degraded"
		}
	}
	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			checks["database"] = "unhealthy"
			status = "degraded"
		} else {
			checks["database"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"version":  s.version,
		"checks":   checks,
		"dispatch": s.dispatcher.Snapshot(),
	})
}
