package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/courseflow/admission/internal/domain"
	"github.com/courseflow/admission/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	addErr  error
	rank    int64
	rankOK  bool
	rankErr error
	added   []domain.QueuedRequest
	scores  []float64
}

func (f *fakeQueue) Add(_ context.Context, _ int64, req domain.QueuedRequest, score float64) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, req)
	f.scores = append(f.scores, score)
	return nil
}

func (f *fakeQueue) PopMin(context.Context, int64) (domain.QueuedRequest, bool, error) {
	return domain.QueuedRequest{}, false, nil
}

func (f *fakeQueue) Rank(context.Context, int64, domain.QueuedRequest) (int64, bool, error) {
	return f.rank, f.rankOK, f.rankErr
}

func (f *fakeQueue) Cardinality(context.Context, int64) (int64, error) { return int64(len(f.added)), nil }

func (f *fakeQueue) AllowRequest(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (f *fakeQueue) Ping(context.Context) error { return nil }

type fakeRepo struct {
	stats domain.CourseStats
}

func (f *fakeRepo) Allocate(context.Context, domain.QueuedRequest) (domain.AllocationOutcome, error) {
	return domain.OutcomeSuccess, nil
}
func (f *fakeRepo) GetCourse(context.Context, int64) (domain.Course, error) { return domain.Course{}, nil }
func (f *fakeRepo) ListCourses(context.Context, domain.CourseFilter) ([]domain.Course, error) {
	return nil, nil
}
func (f *fakeRepo) GetStats(context.Context, int64) (domain.CourseStats, error) { return f.stats, nil }
func (f *fakeRepo) UpsertCourse(context.Context, string, int) (domain.Course, error) {
	return domain.Course{}, nil
}
func (f *fakeRepo) Ping(context.Context) error { return nil }

func TestIntakeRejectsInvalidRequests(t *testing.T) {
	svc := service.NewAdmissionService(&fakeQueue{}, &fakeRepo{})

	cases := []domain.EnrollRequest{
		{StudentID: 0, CourseID: 1, IdempotencyKey: "k"},
		{StudentID: 1, CourseID: 0, IdempotencyKey: "k"},
		{StudentID: 1, CourseID: 1, IdempotencyKey: ""},
		{StudentID: 1, CourseID: 1, IdempotencyKey: "k", Priority: -1},
	}

	for _, req := range cases {
		_, err := svc.Intake(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

func TestIntakeRejectsOverlongIdempotencyKey(t *testing.T) {
	svc := service.NewAdmissionService(&fakeQueue{}, &fakeRepo{})
	longKey := make([]byte, 65)
	for i := range longKey {
		longKey[i] = 'a'
	}

	_, err := svc.Intake(context.Background(), domain.EnrollRequest{
		StudentID: 1, CourseID: 1, IdempotencyKey: string(longKey),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIntakeEnqueuesAndReportsPosition(t *testing.T) {
	q := &fakeQueue{rank: 2, rankOK: true}
	svc := service.NewAdmissionService(q, &fakeRepo{})

	pos, err := svc.Intake(context.Background(), domain.EnrollRequest{
		StudentID: 1, CourseID: 1, IdempotencyKey: "k1", Priority: 3,
	})

	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 3, *pos) // rank is zero-based, position is 1-based
	require.Len(t, q.added, 1)
	assert.Equal(t, "k1", q.added[0].IdempotencyKey)
}

func TestIntakeReturnsQueueUnavailableOnAddFailure(t *testing.T) {
	q := &fakeQueue{addErr: assertError{"redis down"}}
	svc := service.NewAdmissionService(q, &fakeRepo{})

	_, err := svc.Intake(context.Background(), domain.EnrollRequest{
		StudentID: 1, CourseID: 1, IdempotencyKey: "k",
	})
	assert.ErrorIs(t, err, domain.ErrQueueUnavailable)
}

func TestIntakeSucceedsWithNilPositionWhenRankLookupFails(t *testing.T) {
	q := &fakeQueue{rankErr: assertError{"rank unavailable"}}
	svc := service.NewAdmissionService(q, &fakeRepo{})

	pos, err := svc.Intake(context.Background(), domain.EnrollRequest{
		StudentID: 1, CourseID: 1, IdempotencyKey: "k",
	})
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestGetStatsMergesQueueDepth(t *testing.T) {
	q := &fakeQueue{added: []domain.QueuedRequest{{}, {}, {}}}
	repo := &fakeRepo{stats: domain.CourseStats{CourseID: 1, Capacity: 10, SeatsTaken: 4, Status: "open"}}
	svc := service.NewAdmissionService(q, repo)

	stats, err := svc.GetStats(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.QueueDepth)
	assert.Equal(t, "open", stats.Status)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
