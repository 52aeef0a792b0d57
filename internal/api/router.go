// Package api exposes the loan service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"loan-workflow/internal/common/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestTimeout = 60 * time.Second

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// NewRouter mounts the loan routes under /api/v1/loans next to the health,
// readiness and metrics endpoints.
func NewRouter(h *Handler, checks map[string]ReadinessCheck, log logger.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", ActorHeader, middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth)
	r.Get("/ready", handleReady(checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/loans", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/statistics", h.handleStatistics)
		r.Get("/search", h.handleSearch)
		r.Get("/status/{status}", h.handleListByStatus)
		r.Get("/underwriter/{underwriter}", h.handleListForUnderwriter)

		r.Route("/{number}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Patch("/", h.handleUpdate)
			r.Delete("/", h.handleCancel)
			r.Post("/submit", h.handleSubmit)
			r.Post("/process", h.handleProcess)
			r.Post("/dispatch", h.handleDispatch)
			r.Post("/documents", h.handleAddDocument)
			r.Get("/documents/required", h.handleRequiredDocuments)
			r.Get("/workflow-state", h.handleWorkflowState)
		})
	})

	return r
}

func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				return
			}
			log.Debug("http request", map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"durationMs": time.Since(start).Milliseconds(),
				"requestId":  middleware.GetReqID(r.Context()),
			})
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func handleReady(checks map[string]ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not_ready"
		}
		writeJSON(w, status, map[string]interface{}{
			"status": state,
			"checks": results,
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}
