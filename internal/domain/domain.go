package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AllocationOutcome is the structured result the allocation transaction
// returns to the allocator worker.
type AllocationOutcome string

const (
	OutcomeSuccess          AllocationOutcome = "success"
	OutcomeWaitlisted       AllocationOutcome = "waitlisted"
	OutcomeNotFound         AllocationOutcome = "not_found"
	OutcomeAlreadyProcessed AllocationOutcome = "already_processed"
)

var (
	ErrCourseNotFound   = errors.New("course not found")
	ErrQueueUnavailable = errors.New("intake queue unreachable")
	ErrValidation       = errors.New("request failed validation")
)

// Course is the capacity-bearing row the allocator locks per request.
type Course struct {
	ID         int64     `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Capacity   int       `json:"capacity" db:"capacity"`
	SeatsTaken int       `json:"seats_taken" db:"seats_taken"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Enrollment is created exactly once by the allocator on a successful
// allocation; never mutated, never deleted.
type Enrollment struct {
	ID             uuid.UUID `json:"id"`
	StudentID      int64     `json:"student_id"`
	CourseID       int64     `json:"course_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	BookedAt       time.Time `json:"booked_at"`
}

// WaitlistEntry is a (student, course) pair created when allocation finds
// the course full; never mutated.
type WaitlistEntry struct {
	StudentID int64     `json:"student_id"`
	CourseID  int64     `json:"course_id"`
	CreatedAt time.Time `json:"created_at"`
}

// QueuedRequest is the transient payload that lives only in the ordered
// intake queue. Field order is fixed so re-marshaling is byte-stable,
// which is what makes a retry with the same idempotency key update (not
// duplicate) the queued entry.
type QueuedRequest struct {
	StudentID      int64  `json:"student_id"`
	CourseID       int64  `json:"course_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// EnrollRequest is the decoded, validated intake payload; Priority is
// carried separately from QueuedRequest because it only feeds the score,
// never the member encoding.
type EnrollRequest struct {
	StudentID      int64  `json:"student_id"`
	CourseID       int64  `json:"course_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Priority       int    `json:"priority"`
}

// CourseFilter narrows GET /courses. A zero value matches every course.
type CourseFilter struct {
	NameContains string
	MinCapacity  int
}

// CourseStats is the read-side snapshot backing GET /metrics/json.
type CourseStats struct {
	CourseID   int64  `json:"course_id"`
	QueueDepth int64  `json:"queue_depth"`
	SeatsTaken int    `json:"seats_taken"`
	Capacity   int    `json:"capacity"`
	Status     string `json:"status"`
}

// AllocationRepository is the durable store's write surface: the single
// transactional allocation decision, plus the reads needed by the HTTP
// surface and the admin CLI.
type AllocationRepository interface {
	// Allocate runs the allocation transaction: lock the course row, check
	// the idempotency key, then either enroll or waitlist. It never returns a
	// plain Go error for a business outcome; those are reported via the
	// returned AllocationOutcome. A non-nil error means a transient
	// infrastructure failure (connection, timeout, context cancellation).
	Allocate(ctx context.Context, req QueuedRequest) (AllocationOutcome, error)

	GetCourse(ctx context.Context, courseID int64) (Course, error)
	ListCourses(ctx context.Context, filter CourseFilter) ([]Course, error)
	GetStats(ctx context.Context, courseID int64) (CourseStats, error)

	// UpsertCourse is the operator escape hatch used by the admin CLI;
	// course CRUD proper is out of scope.
	UpsertCourse(ctx context.Context, name string, capacity int) (Course, error)

	// Ping backs GET /ready.
	Ping(ctx context.Context) error
}

// IntakeQueue is a per-course score-ordered set with atomic pop-min.
type IntakeQueue interface {
	// Add enqueues req at score, updating the score in place if a member
	// with an identical canonical encoding already exists.
	Add(ctx context.Context, courseID int64, req QueuedRequest, score float64) error

	// PopMin atomically removes and returns the minimum-score member, or
	// ok=false if the queue is empty.
	PopMin(ctx context.Context, courseID int64) (req QueuedRequest, ok bool, err error)

	// Rank returns the zero-based position of req in the queue, or
	// ok=false if it is not present.
	Rank(ctx context.Context, courseID int64, req QueuedRequest) (rank int64, ok bool, err error)

	// Cardinality reports the current queue depth for metrics.
	Cardinality(ctx context.Context, courseID int64) (int64, error)

	// AllowRequest is the fixed-window, per-IP rate limiter applied to every
	// HTTP route.
	AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error)

	// Ping backs GET /ready.
	Ping(ctx context.Context) error
}
