package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window request counter shared by every service instance.
type RedisLimiter struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter allows limit requests per key in each window.
func NewRedisLimiter(client redis.Cmdable, limit int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{client: client, limit: int64(limit), window: window, now: time.Now}
}

func (l *RedisLimiter) key(subject string) string {
	bucket := l.now().UTC().UnixNano() / int64(l.window)
	return fmt.Sprintf("report:ratelimit:%s:%d", subject, bucket)
}

// Allow counts one request for subject and reports whether it is within the limit.
func (l *RedisLimiter) Allow(ctx context.Context, subject string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	key := l.key(subject)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= l.limit, nil
}
