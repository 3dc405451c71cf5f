package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/roomsync-core/internal/engine"
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
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/status", s.handleStatus)

		// Synced state
		r.Get("/state", s.handleSnapshot)
		r.Get("/devices", s.handleDevices)
		r.Get("/sensors", s.handleSensorSeries)
		r.Get("/sensors/current", s.handleCurrentSensors)
		r.Get("/messages", s.handleMessages)

		// Followed room
		r.Get("/context", s.handleGetContext)
		r.Put("/context", s.handleSetContext)

		// User actions
		r.Post("/publish", s.handlePublish)
		r.Post("/rooms/{id}/publish", s.handleRoomPublish)

		r.Get(wsPath(s.wsCfg.Path), s.handleWebSocket)
	})

	return r
}

func wsPath(path string) string {
	if path == "" {
		return "/ws"
	}
	return path
}

// handleHealth returns the server health status.
//
// The response is 200 while the broker session is up and 503 otherwise,
// with the engine's reason in "mqtt".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":  "ok",
		"version": s.version,
		"mqtt":    "connected",
	}

	if err := s.engine.HealthCheck(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["mqtt"] = err.Error()
		if errors.Is(err, engine.ErrEngineStopped) {
			body["status"] = "stopped"
		}
	}

	writeJSON(w, status, body)
}

// handleStatus returns the engine's connection and subscription summary.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}
