package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/courseflow/admission/internal/domain"
	courseredis "github.com/courseflow/admission/internal/infrastructure/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestQueue(t *testing.T) (*courseredis.Queue, func()) {
	mr := miniredis.RunT(t)
	q := courseredis.New(mr.Addr(), "", 0)
	return q, func() { q.Client.Close(); mr.Close() }
}

func TestAddAndPopMinOrdersByScore(t *testing.T) {
	q, cleanup := setupTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	first := domain.QueuedRequest{StudentID: 1, CourseID: 9, IdempotencyKey: "a"}
	second := domain.QueuedRequest{StudentID: 2, CourseID: 9, IdempotencyKey: "b"}

	require.NoError(t, q.Add(ctx, 9, first, 100))
	require.NoError(t, q.Add(ctx, 9, second, 200))

	popped, ok, err := q.PopMin(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, popped)
}

func TestPopMinPrefersHigherPriorityWithinWindow(t *testing.T) {
	q, cleanup := setupTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	// Three priority-0 arrivals, then a priority-10 arrival 3ms later.
	// The 10ms-per-level score offset must pull the late high-priority
	// request ahead of all of them.
	base := time.Now().UnixMicro()
	for i, key := range []string{"a", "b", "c"} {
		req := domain.QueuedRequest{StudentID: int64(i + 1), CourseID: 3, IdempotencyKey: key}
		require.NoError(t, q.Add(ctx, 3, req, domain.Score(base+int64(i)*1_000, 0)))
	}
	boosted := domain.QueuedRequest{StudentID: 99, CourseID: 3, IdempotencyKey: "vip"}
	require.NoError(t, q.Add(ctx, 3, boosted, domain.Score(base+3_000, 10)))

	popped, ok, err := q.PopMin(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, boosted, popped)
}

func TestPopMinOnEmptyQueueReturnsFalse(t *testing.T) {
	q, cleanup := setupTestQueue(t)
	defer cleanup()

	_, ok, err := q.PopMin(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddSameMemberUpdatesScoreInPlace(t *testing.T) {
	q, cleanup := setupTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	req := domain.QueuedRequest{StudentID: 1, CourseID: 1, IdempotencyKey: "retry-key"}

	require.NoError(t, q.Add(ctx, 1, req, 500))
	require.NoError(t, q.Add(ctx, 1, req, 100))

	depth, err := q.Cardinality(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth, "re-adding the same canonical member must not create a duplicate entry")
}

func TestRankReportsZeroBasedPosition(t *testing.T) {
	q, cleanup := setupTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	first := domain.QueuedRequest{StudentID: 1, CourseID: 1, IdempotencyKey: "a"}
	second := domain.QueuedRequest{StudentID: 2, CourseID: 1, IdempotencyKey: "b"}
	require.NoError(t, q.Add(ctx, 1, first, 10))
	require.NoError(t, q.Add(ctx, 1, second, 20))

	rank, ok, err := q.Rank(ctx, 1, second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), rank)
}

func TestRankMissingMemberReturnsNotFound(t *testing.T) {
	q, cleanup := setupTestQueue(t)
	defer cleanup()

	_, ok, err := q.Rank(context.Background(), 1, domain.QueuedRequest{StudentID: 9, CourseID: 1, IdempotencyKey: "nope"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCardinalityIsPerCourse(t *testing.T) {
	q, cleanup := setupTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, q.Add(ctx, 1, domain.QueuedRequest{StudentID: 1, CourseID: 1, IdempotencyKey: "a"}, 1))
	require.NoError(t, q.Add(ctx, 2, domain.QueuedRequest{StudentID: 1, CourseID: 2, IdempotencyKey: "b"}, 1))

	depth1, err := q.Cardinality(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth1)

	depth2, err := q.Cardinality(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth2)
}

func TestAllowRequestFixedWindow(t *testing.T) {
	q, cleanup := setupTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := q.AllowRequest(ctx, "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := q.AllowRequest(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllowRequestPerIPIsIndependent(t *testing.T) {
	q, cleanup := setupTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = q.AllowRequest(ctx, "1.1.1.1", 3, time.Minute)
	}

	ok, err := q.AllowRequest(ctx, "2.2.2.2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPingReportsReachability(t *testing.T) {
	q, cleanup := setupTestQueue(t)
	defer cleanup()

	assert.NoError(t, q.Ping(context.Background()))
}
