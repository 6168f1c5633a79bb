package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/feemaison/bakery-erp/internal/shared"
)

// Release frees a held lock.
type Release func(ctx context.Context) error

// Locker hands out short-lived Redis locks keyed by business identifier.
type Locker struct {
	client *redislock.Client
	retry  redislock.RetryStrategy
}

// New wraps a Redis client. Contended locks are retried every 100ms until the context ends.
func New(rdb redis.UniversalClient) *Locker {
	return &Locker{
		client: redislock.New(rdb),
		retry:  redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 30),
	}
}

// Acquire obtains key for ttl. A lock held elsewhere yields CONCURRENT_UPDATE.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	lk, err := l.client.Obtain(ctx, key, ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, shared.E(shared.KindConcurrentUpdate, "lock.acquire", key, "lock held by another worker")
	}
	if err != nil {
		return nil, fmt.Errorf("platform/lock: obtain %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		if err := lk.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("platform/lock: release %s: %w", key, err)
		}
		return nil
	}, nil
}
