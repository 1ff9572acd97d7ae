package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptLimiter throttles login attempts per key (the normalised identifier).
type AttemptLimiter interface {
	// Allow records one attempt and reports whether it is within the limit.
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// NopLimiter allows everything. Used when no redis is configured.
type NopLimiter struct{}

func (NopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
func (NopLimiter) Reset(context.Context, string) error         { return nil }

// RedisAttemptLimiter is a fixed-window counter: INCR per attempt, EXPIRE on
// the first attempt of a window.
type RedisAttemptLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
	prefix string
}

// NewRedisAttemptLimiter creates a limiter allowing max attempts per window.
func NewRedisAttemptLimiter(client *redis.Client, max int, window time.Duration) *RedisAttemptLimiter {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisAttemptLimiter{client: client, max: max, window: window, prefix: "rl:login:"}
}

func (l *RedisAttemptLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key
	cnt, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return true, err
	}
	if cnt == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return true, err
		}
	}
	return cnt <= int64(l.max), nil
}

func (l *RedisAttemptLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}
