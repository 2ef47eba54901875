package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/courseflow/admission/internal/domain"
)

// AdmissionService is the intake endpoint's logic: validate, score,
// enqueue, report position. It never touches the relational store; that
// happens later, inside the allocator worker's transaction.
type AdmissionService struct {
	queue domain.IntakeQueue
	repo  domain.AllocationRepository
	now   func() time.Time
}

func NewAdmissionService(queue domain.IntakeQueue, repo domain.AllocationRepository) *AdmissionService {
	return &AdmissionService{queue: queue, repo: repo, now: time.Now}
}

// Intake validates req, computes its score, and enqueues it. It returns the
// request's queue position (1-based, matching the HTTP contract) or nil if
// the rank lookup fails non-fatally (the enqueue itself still succeeded).
func (s *AdmissionService) Intake(ctx context.Context, req domain.EnrollRequest) (*int, error) {
	if err := validateEnrollRequest(req); err != nil {
		return nil, err
	}

	queued := domain.QueuedRequest{
		StudentID:      req.StudentID,
		CourseID:       req.CourseID,
		IdempotencyKey: req.IdempotencyKey,
	}

	score := domain.Score(s.now().UnixMicro(), req.Priority)
	if err := s.queue.Add(ctx, req.CourseID, queued, score); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	rank, ok, err := s.queue.Rank(ctx, req.CourseID, queued)
	if err != nil || !ok {
		return nil, nil
	}
	position := int(rank) + 1
	return &position, nil
}

func validateEnrollRequest(req domain.EnrollRequest) error {
	if req.StudentID <= 0 {
		return fmt.Errorf("%w: student_id must be positive", domain.ErrValidation)
	}
	if req.CourseID <= 0 {
		return fmt.Errorf("%w: course_id must be positive", domain.ErrValidation)
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return fmt.Errorf("%w: idempotency_key is required", domain.ErrValidation)
	}
	if len(key) > 64 {
		return fmt.Errorf("%w: idempotency_key exceeds 64 characters", domain.ErrValidation)
	}
	if req.Priority < 0 {
		return fmt.Errorf("%w: priority must be >= 0", domain.ErrValidation)
	}
	return nil
}

// ListCourses and GetStats back the read-only HTTP surface; they are plain
// pass-throughs but live on the service so handlers never import the
// repository package directly.
func (s *AdmissionService) ListCourses(ctx context.Context, filter domain.CourseFilter) ([]domain.Course, error) {
	return s.repo.ListCourses(ctx, filter)
}

func (s *AdmissionService) GetStats(ctx context.Context, courseID int64) (domain.CourseStats, error) {
	stats, err := s.repo.GetStats(ctx, courseID)
	if err != nil {
		return domain.CourseStats{}, err
	}
	depth, err := s.queue.Cardinality(ctx, courseID)
	if err == nil {
		stats.QueueDepth = depth
	}
	return stats, nil
}
