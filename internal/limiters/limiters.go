// Package limiters implements the fixed-window Redis counters that throttle
// failed login and second-factor attempts.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned once a key exhausts its attempt budget.
var ErrRateLimited = errors.New("rate limited")

// ErrUnavailable wraps Redis failures.
var ErrUnavailable = errors.New("limiter backend unavailable")

// Limiter counts failures per key inside a cooldown window. A key is blocked
// while its counter is at or above the maximum; successful attempts reset it.
type Limiter struct {
	redis    *redis.Client
	prefix   string
	max      int
	cooldown time.Duration
}

func New(redisClient *redis.Client, prefix string, max int, cooldown time.Duration) *Limiter {
	return &Limiter{
		redis:    redisClient,
		prefix:   prefix,
		max:      max,
		cooldown: cooldown,
	}
}

func (l *Limiter) key(id string) string {
	return l.prefix + ":" + id
}

// Check reports whether id is currently blocked without counting an attempt.
func (l *Limiter) Check(ctx context.Context, id string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= int64(l.max) {
		return ErrRateLimited
	}
	return nil
}

// RecordFailure counts one failed attempt and starts the cooldown window on
// the first failure. It returns ErrRateLimited when the budget is reached.
func (l *Limiter) RecordFailure(ctx context.Context, id string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	count, err := l.redis.Incr(ctx, l.key(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(id), l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count >= int64(l.max) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counter for id.
func (l *Limiter) Reset(ctx context.Context, id string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
