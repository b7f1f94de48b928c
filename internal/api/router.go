package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-timetable/internal/auth"
)

// healthCheckTimeout bounds each component check on /health.
const healthCheckTimeout = 2 * time.Second

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
		r.Get("/ws", s.handleWebSocket)

		r.Route("/timetables", func(r chi.Router) {
			r.Get("/", s.handleListTimetables)
			r.With(s.authMiddleware, s.requirePermission(auth.PermTimetableManage)).
				Post("/", s.handleCreateTimetable)
			r.With(s.authMiddleware, s.requirePermission(auth.PermConfigReload)).
				Post("/reload", s.handleReload)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTimetable)
				r.Get("/history", s.handleGetHistory)

				r.Group(func(r chi.Router) {
					r.Use(s.authMiddleware)

					r.With(s.requirePermission(auth.PermTimetableManage)).Patch("/", s.handleRenameTimetable)
					r.With(s.requirePermission(auth.PermTimetableManage)).Delete("/", s.handleDeleteTimetable)

					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermTimetableWrite))
						r.Post("/set", s.handleSet)
						r.Post("/unset", s.handleUnset)
						r.Post("/reset", s.handleReset)
						r.Post("/reconfig", s.handleReconfig)
					})
				})
			})
		})
	})

	return r
}

// handleHealth reports the server and each registered component.
// Any failing component makes the status "degraded" with a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	components := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"timetables": s.registry.Len(),
		"components": components,
	})
}
