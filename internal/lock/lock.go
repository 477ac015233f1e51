// Package lock keeps two runs from reconciling the same site at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// ErrLocked is returned when another run holds the site.
var ErrLocked = errors.New("site is locked by another run")

// DefaultTTL bounds how long a crashed run can keep a Redis lock.
const DefaultTTL = 2 * time.Hour

const keyPrefix = "gsc-indexer:lock:"

// Local is an in-process lock set, used when no Redis is configured.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal returns an empty lock set.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// Lock claims key without waiting.
func (l *Local) Lock(_ context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}

// Redis is a distributed lock backed by redislock.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedis wraps a Redis client. A non-positive ttl takes DefaultTTL.
func NewRedis(client redislock.RedisClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: redislock.New(client), ttl: ttl}
}

// Lock obtains key once, without retrying.
func (r *Redis) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	lock, err := r.client.Obtain(ctx, keyPrefix+key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}, nil
}
