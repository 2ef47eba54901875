package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/courseflow/admission/internal/domain"
	"github.com/courseflow/admission/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterDeps struct {
	Queue    domain.IntakeQueue
	Repo     domain.AllocationRepository
	Handler  *Handler
	RLLimit  int
	RLWindow time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Queue == nil {
		panic("rest.NewRouter: nil queue")
	}
	if d.Repo == nil {
		panic("rest.NewRouter: nil repo")
	}
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}

	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(MetricsMiddleware)
	r.Use(HTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(RateLimitMiddleware(d.Queue, d.RLLimit, d.RLWindow))
	r.Use(SecurityHeaders)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(d.Queue, d.Repo))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/metrics/json", d.Handler.MetricsJSON)

	r.Post("/enroll", d.Handler.Enroll)
	r.Get("/courses", d.Handler.ListCourses)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func readyHandler(queue domain.IntakeQueue, repo domain.AllocationRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string)
		ready := true

		if err := queue.Ping(ctx); err != nil {
			checks["queue"] = "unhealthy: " + err.Error()
			ready = false
		} else {
			checks["queue"] = "healthy"
		}

		if err := repo.Ping(ctx); err != nil {
			checks["db"] = "unhealthy: " + err.Error()
			ready = false
		} else {
			checks["db"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if ready {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(checks)
	}
}
