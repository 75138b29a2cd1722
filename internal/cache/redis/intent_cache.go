package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/policast/internal/domain"
)

// IntentCache implements domain.IntentDeduper with SET NX so a client
// resubmitting the same intent id across instances is refused.
type IntentCache struct {
	rdb redis.UniversalClient
}

// NewIntentCache creates an IntentCache backed by the given Client.
func NewIntentCache(c *Client) *IntentCache {
	return &IntentCache{rdb: c.rdb}
}

func intentKey(id string) string { return keyPrefix + "intent:" + id }

// Claim records id for ttl. It reports false if id was already claimed.
func (ic *IntentCache) Claim(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := ic.rdb.SetNX(ctx, intentKey(id), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim intent %s: %w", id, err)
	}
	return ok, nil
}

// Release forgets id, allowing a resubmission. Used for retries.
func (ic *IntentCache) Release(ctx context.Context, id string) error {
	if err := ic.rdb.Del(ctx, intentKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: release intent %s: %w", id, err)
	}
	return nil
}

var _ domain.IntentDeduper = (*IntentCache)(nil)
