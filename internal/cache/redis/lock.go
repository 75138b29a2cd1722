package redis

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/policast/internal/domain"
)

// releaseScript deletes the key only while it still holds our token, so a
// lock that expired and was taken by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0`)

// extendScript resets the TTL only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0`)

const (
	retryMin = 50 * time.Millisecond
	retryMax = 500 * time.Millisecond
)

// LockManager hands out per-key locks with a TTL (SET NX PX).
type LockManager struct {
	rdb redis.UniversalClient
}

// NewLockManager creates a LockManager on c.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.rdb}
}

func lockKey(key string) string {
	return keyPrefix + "lock:" + key
}

// Acquire takes the lock for key or returns domain.ErrLockHeld. While held,
// the TTL is renewed every ttl/3, so a holder waiting on a slow
// confirmation keeps it; ttl only bounds how long a crashed holder blocks
// others. The unlock function is safe to call more than once and after ctx
// has ended.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	k := lockKey(key)
	ok, err := lm.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	bg := context.WithoutCancel(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, ttl/3, func() (bool, error) {
			ectx, cancel := context.WithTimeout(bg, 5*time.Second)
			defer cancel()
			n, err := extendScript.Run(ectx, lm.rdb, []string{k}, token, ttl.Milliseconds()).Int64()
			return n == 1, err
		})
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			rctx, cancel := context.WithTimeout(bg, 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(rctx, lm.rdb, []string{k}, token).Err()
		})
	}, nil
}

// keepAlive calls extend every interval until stop closes or extend reports
// the lock lost. Transient errors are retried on the next tick.
func keepAlive(stop <-chan struct{}, interval time.Duration, extend func() (bool, error)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := extend()
			if err == nil && !held {
				return
			}
		}
	}
}

// AcquireWithin keeps trying for up to wait, backing off between attempts.
// It returns domain.ErrLockHeld when the lock never frees up.
func (lm *LockManager) AcquireWithin(ctx context.Context, key string, ttl, wait time.Duration) (func(), error) {
	deadline := time.Now().Add(wait)
	delay := retryMin
	for {
		unlock, err := lm.Acquire(ctx, key, ttl)
		if !errors.Is(err, domain.ErrLockHeld) || !time.Now().Before(deadline) {
			return unlock, err
		}
		sleep := min(delay+rand.N(delay), time.Until(deadline))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redis: lock %s: %w", key, ctx.Err())
		case <-time.After(sleep):
		}
		delay = min(delay*2, retryMax)
	}
}

var _ domain.LockManager = (*LockManager)(nil)
