package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/courseflow/admission/internal/domain"
	"github.com/redis/go-redis/v9"
)

type Queue struct {
	Client *redis.Client
}

func New(addr, pass string, db int) *Queue {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return &Queue{Client: rdb}
}

func queueKey(courseID int64) string {
	return fmt.Sprintf("queue:course:%d", courseID)
}

// Add enqueues req at score. ZADD's natural semantics already give us the
// "update score in place for an existing member" behavior the canonical
// encoding in domain.CanonicalMember is designed to exploit.
func (q *Queue) Add(ctx context.Context, courseID int64, req domain.QueuedRequest, score float64) error {
	member, err := domain.CanonicalMember(req)
	if err != nil {
		return err
	}
	return q.Client.ZAdd(ctx, queueKey(courseID), redis.Z{Score: score, Member: member}).Err()
}

// PopMin atomically removes and returns the minimum-score member.
func (q *Queue) PopMin(ctx context.Context, courseID int64) (domain.QueuedRequest, bool, error) {
	res, err := q.Client.ZPopMin(ctx, queueKey(courseID), 1).Result()
	if err != nil {
		return domain.QueuedRequest{}, false, err
	}
	if len(res) == 0 {
		return domain.QueuedRequest{}, false, nil
	}
	member, ok := res[0].Member.(string)
	if !ok {
		return domain.QueuedRequest{}, false, fmt.Errorf("unexpected queue member type %T", res[0].Member)
	}
	req, err := domain.DecodeMember(member)
	if err != nil {
		return domain.QueuedRequest{}, false, err
	}
	return req, true, nil
}

// Rank returns the zero-based position of req, used for the client-visible
// queue_position.
func (q *Queue) Rank(ctx context.Context, courseID int64, req domain.QueuedRequest) (int64, bool, error) {
	member, err := domain.CanonicalMember(req)
	if err != nil {
		return 0, false, err
	}
	rank, err := q.Client.ZRank(ctx, queueKey(courseID), member).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, false, nil
		}
		return 0, false, err
	}
	return rank, true, nil
}

// Cardinality reports queue depth, used by the metrics gauge.
func (q *Queue) Cardinality(ctx context.Context, courseID int64) (int64, error) {
	return q.Client.ZCard(ctx, queueKey(courseID)).Result()
}

// AllowRequest is a fixed-window, per-IP rate limiter applied to every HTTP
// route.
func (q *Queue) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	key := "ratelimit:" + ip
	count, err := q.Client.Incr(ctx, key).Result()
	if err != nil {
		return true, nil // fail open
	}
	if count == 1 {
		_ = q.Client.Expire(ctx, key, window).Err()
	}
	return count <= int64(limit), nil
}

// Ping backs GET /ready.
func (q *Queue) Ping(ctx context.Context) error {
	return q.Client.Ping(ctx).Err()
}
