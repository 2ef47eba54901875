package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/courseflow/admission/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Allocate is the single serializable allocation decision: lock the course
// row, check the idempotency key, then either enroll or waitlist. Unique
// constraints are
// the ground truth; the in-transaction SELECTs are best-effort fast paths
// that the unique-violation handlers below fall back on when they lose a
// race.
func (r *Repository) Allocate(ctx context.Context, req domain.QueuedRequest) (domain.AllocationOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// 1) Exclusive row lock on the target course.
	var capacity, seatsTaken int
	err = tx.QueryRow(ctx, `
		SELECT capacity, seats_taken
		FROM courses
		WHERE id = $1
		FOR UPDATE
	`, req.CourseID).Scan(&capacity, &seatsTaken)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Commit(ctx)
		return domain.OutcomeNotFound, nil
	}
	if err != nil {
		return "", err
	}

	// 2) Idempotency fast path: has this key already produced an
	// enrollment?
	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM enrollments WHERE idempotency_key = $1)
	`, req.IdempotencyKey).Scan(&exists)
	if err != nil {
		return "", err
	}
	if exists {
		_ = tx.Commit(ctx)
		return domain.OutcomeAlreadyProcessed, nil
	}

	// 3) Full: waitlist. A duplicate (student, course) pair means the
	// intended state already holds, so it is reported as waitlisted too,
	// without staging a second notification.
	if seatsTaken >= capacity {
		tag, err := tx.Exec(ctx, `
			INSERT INTO waitlist (student_id, course_id, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (student_id, course_id) DO NOTHING
		`, req.StudentID, req.CourseID)
		if err != nil {
			return "", err
		}
		if tag.RowsAffected() > 0 {
			if err := r.insertOutboxEvent(ctx, tx, "enrollment.waitlisted", req); err != nil {
				return "", err
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return "", err
		}
		return domain.OutcomeWaitlisted, nil
	}

	// 4) Seat available: increment and enroll.
	_, err = tx.Exec(ctx, `UPDATE courses SET seats_taken = seats_taken + 1 WHERE id = $1`, req.CourseID)
	if err != nil {
		return "", err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO enrollments (id, student_id, course_id, idempotency_key, booked_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, uuid.New(), req.StudentID, req.CourseID, req.IdempotencyKey)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost race on the idempotency key: another transaction beat us
			// to the insert. Our seats_taken increment is rolled back with
			// the aborted transaction.
			return domain.OutcomeAlreadyProcessed, nil
		}
		return "", err
	}

	if err := r.insertOutboxEvent(ctx, tx, "enrollment.created", req); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return domain.OutcomeSuccess, nil
}

// insertOutboxEvent stages an outbound notification in the same
// transaction as the allocation decision: either both the allocation and
// its notification commit, or neither does.
func (r *Repository) insertOutboxEvent(ctx context.Context, tx pgx.Tx, routingKey string, req domain.QueuedRequest) error {
	payload, err := json.Marshal(map[string]any{
		"student_id":      req.StudentID,
		"course_id":       req.CourseID,
		"idempotency_key": req.IdempotencyKey,
	})
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (message_id, routing_key, payload, occurred_at, status)
		VALUES ($1, $2, $3, NOW(), 'pending')
	`, uuid.New(), routingKey, payload)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (r *Repository) GetCourse(ctx context.Context, courseID int64) (domain.Course, error) {
	var c domain.Course
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, capacity, seats_taken, created_at
		FROM courses
		WHERE id = $1
	`, courseID).Scan(&c.ID, &c.Name, &c.Capacity, &c.SeatsTaken, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Course{}, domain.ErrCourseNotFound
	}
	return c, err
}

func (r *Repository) GetStats(ctx context.Context, courseID int64) (domain.CourseStats, error) {
	c, err := r.GetCourse(ctx, courseID)
	if err != nil {
		return domain.CourseStats{}, err
	}
	status := "open"
	if c.SeatsTaken >= c.Capacity {
		status = "full"
	}
	return domain.CourseStats{
		CourseID:   c.ID,
		SeatsTaken: c.SeatsTaken,
		Capacity:   c.Capacity,
		Status:     status,
	}, nil
}

// UpsertCourse is the operator escape hatch used by the admin CLI; course
// CRUD proper is out of scope for the HTTP surface.
func (r *Repository) UpsertCourse(ctx context.Context, name string, capacity int) (domain.Course, error) {
	var c domain.Course
	err := r.pool.QueryRow(ctx, `
		INSERT INTO courses (name, capacity, seats_taken, created_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (name) DO UPDATE
		SET capacity = EXCLUDED.capacity
		RETURNING id, name, capacity, seats_taken, created_at
	`, name, capacity).Scan(&c.ID, &c.Name, &c.Capacity, &c.SeatsTaken, &c.CreatedAt)
	return c, err
}

// Ping backs GET /ready.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
