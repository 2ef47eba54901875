package rest

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/courseflow/admission/internal/domain"
	"github.com/courseflow/admission/internal/metrics"
	"github.com/courseflow/admission/internal/reqctx"
	"github.com/courseflow/admission/internal/service"
	"github.com/courseflow/admission/internal/transport/rest/response"
	"github.com/go-chi/render"
)

type Handler struct {
	svc *service.AdmissionService
}

func NewHandler(svc *service.AdmissionService) *Handler {
	return &Handler{svc: svc}
}

type enrollBody struct {
	StudentID      int64  `json:"student_id"`
	CourseID       int64  `json:"course_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Priority       int    `json:"priority"`
}

// Enroll implements POST /enroll. This endpoint never touches the
// relational store; it only validates, scores, and enqueues.
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var body enrollBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		metrics.EnrollRequestsTotal.WithLabelValues("error").Inc()
		fail(w, r, http.StatusUnprocessableEntity, "request.invalid", "invalid body", nil)
		return
	}

	position, err := h.svc.Intake(r.Context(), domain.EnrollRequest{
		StudentID:      body.StudentID,
		CourseID:       body.CourseID,
		IdempotencyKey: body.IdempotencyKey,
		Priority:       body.Priority,
	})
	if err != nil {
		metrics.EnrollRequestsTotal.WithLabelValues("error").Inc()
		handleErr(w, r, err)
		return
	}

	metrics.IntakeLatency.Observe(time.Since(start).Seconds())
	metrics.EnrollRequestsTotal.WithLabelValues("queued").Inc()
	response.Data(w, http.StatusOK, map[string]any{
		"status":         "queued",
		"queue_position": position,
	})
}

// ListCourses implements GET /courses.
func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	filter := domain.CourseFilter{
		NameContains: strings.TrimSpace(r.URL.Query().Get("name")),
	}
	if mc := strings.TrimSpace(r.URL.Query().Get("min_capacity")); mc != "" {
		if n, err := strconv.Atoi(mc); err == nil {
			filter.MinCapacity = n
		}
	}

	courses, err := h.svc.ListCourses(r.Context(), filter)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, courses)
}

// MetricsJSON implements GET /metrics/json?course_id=.
func (h *Handler) MetricsJSON(w http.ResponseWriter, r *http.Request) {
	courseID, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("course_id")), 10, 64)
	if err != nil {
		fail(w, r, http.StatusUnprocessableEntity, "request.invalid", "course_id must be an integer", nil)
		return
	}

	stats, err := h.svc.GetStats(r.Context(), courseID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, stats)
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		fail(w, r, http.StatusUnprocessableEntity, "request.invalid", err.Error(), nil)
	case errors.Is(err, domain.ErrQueueUnavailable):
		fail(w, r, http.StatusServiceUnavailable, "service.unavailable", "queue unreachable", nil)
	case errors.Is(err, domain.ErrCourseNotFound):
		fail(w, r, http.StatusNotFound, "course.not_found", err.Error(), nil)
	default:
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := reqctx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, status, code, message, meta, reqID)
}
