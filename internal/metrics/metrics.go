package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// EnrollRequestsTotal counts enrollment requests by status
	// ("queued", "error").
	EnrollRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enroll_requests_total",
			Help: "Total number of POST /enroll requests by outcome status",
		},
		[]string{"status"},
	)

	// IntakeLatency tracks the enqueue round trip on POST /enroll.
	IntakeLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intake_latency_seconds",
			Help:    "Latency of the intake endpoint's enqueue round trip",
			Buckets: prometheus.DefBuckets,
		},
	)

	// QueueDepth, SeatsTaken and CourseCapacity are labeled per course so
	// they can be sliced the same way the allocator pool is sharded.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current ordered intake queue depth for a course",
		},
		[]string{"course_id"},
	)

	SeatsTaken = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "course_seats_taken",
			Help: "Seats currently taken for a course",
		},
		[]string{"course_id"},
	)

	CourseCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "course_capacity",
			Help: "Total seat capacity for a course",
		},
		[]string{"course_id"},
	)

	AllocationOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_outcomes_total",
			Help: "Allocator worker outcomes by course and result",
		},
		[]string{"course_id", "outcome"},
	)
)

// Handler exposes the Prometheus text format for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
