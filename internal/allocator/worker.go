package allocator

import (
	"context"
	"strconv"
	"time"

	"github.com/courseflow/admission/internal/domain"
	"github.com/courseflow/admission/internal/logger"
	"github.com/courseflow/admission/internal/metrics"
	"github.com/rs/zerolog"
)

// Config tunes the per-course worker's backoff and timeout policy.
type Config struct {
	EmptyBackoff time.Duration
	ErrorBackoff time.Duration
	ItemTimeout  time.Duration
}

// Worker runs the single-consumer state machine for one course: pop,
// decode, allocate, repeat. Exactly one Worker instance may run per
// course at a time; concurrency safety for allocation itself comes from
// the row lock in Repository.Allocate, not from this worker being alone.
type Worker struct {
	courseID int64
	queue    domain.IntakeQueue
	repo     domain.AllocationRepository
	cfg      Config
}

func NewWorker(courseID int64, queue domain.IntakeQueue, repo domain.AllocationRepository, cfg Config) *Worker {
	return &Worker{courseID: courseID, queue: queue, repo: repo, cfg: cfg}
}

// Run blocks until ctx is canceled. A panic inside a single iteration is
// recovered so one bad item can't kill the worker goroutine.
func (w *Worker) Run(ctx context.Context) {
	log := logger.Logger.With().
		Str("component", "allocator_worker").
		Int64("course_id", w.courseID).
		Logger()

	log.Info().Msg("worker started")
	defer log.Info().Msg("worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.step(ctx, &log)
	}
}

func (w *Worker) step(ctx context.Context, log *zerolog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("recovered from panic in allocation step")
			sleep(ctx, w.cfg.ErrorBackoff)
		}
	}()

	req, ok, err := w.queue.PopMin(ctx, w.courseID)
	if err != nil {
		log.Warn().Err(err).Msg("pop_min failed")
		sleep(ctx, w.cfg.ErrorBackoff)
		return
	}
	if !ok {
		sleep(ctx, w.cfg.EmptyBackoff)
		return
	}

	if depth, err := w.queue.Cardinality(ctx, w.courseID); err == nil {
		metrics.QueueDepth.WithLabelValues(strconv.FormatInt(w.courseID, 10)).Set(float64(depth))
	}

	// The allocation ignores worker cancellation: on shutdown the in-flight
	// transaction still runs to completion, bounded only by ItemTimeout.
	allocCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.ItemTimeout)
	defer cancel()

	outcome, err := w.repo.Allocate(allocCtx, req)
	label := strconv.FormatInt(w.courseID, 10)
	if err != nil {
		log.Warn().Err(err).
			Int64("student_id", req.StudentID).
			Str("idempotency_key", req.IdempotencyKey).
			Msg("allocation transaction failed, item dropped (no redelivery)")
		metrics.AllocationOutcomesTotal.WithLabelValues(label, "transient_error").Inc()
		sleep(ctx, w.cfg.ErrorBackoff)
		return
	}

	metrics.AllocationOutcomesTotal.WithLabelValues(label, string(outcome)).Inc()

	ev := log.Info().
		Int64("student_id", req.StudentID).
		Str("idempotency_key", req.IdempotencyKey).
		Str("outcome", string(outcome))
	switch outcome {
	case domain.OutcomeNotFound:
		ev.Msg("course not found, item dropped")
	case domain.OutcomeAlreadyProcessed:
		ev.Msg("idempotency key already processed")
	case domain.OutcomeWaitlisted:
		ev.Msg("waitlisted")
	default:
		ev.Msg("enrolled")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
