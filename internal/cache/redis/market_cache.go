package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/policast/internal/domain"
)

// DefaultMarketTTL bounds how stale a cached view can get when no
// transaction invalidates it.
const DefaultMarketTTL = time.Minute

// MarketCache implements domain.MarketViewCache. Views are stored as JSON in
// a hash together with the fetch time.
//
// Key schema:
//
//	policast:market:{version}:{id} - hash {data, fetched_at}
type MarketCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewMarketCache creates a MarketCache. A zero ttl uses DefaultMarketTTL.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &MarketCache{rdb: c.rdb, ttl: ttl}
}

func marketKey(version domain.MarketVersion, id uint64) string {
	return keyPrefix + "market:" + string(version) + ":" + strconv.FormatUint(id, 10)
}

// Set stores view until the TTL elapses or it is invalidated.
func (mc *MarketCache) Set(ctx context.Context, view domain.MarketView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s/%d: %w", view.Version, view.ID, err)
	}
	key := marketKey(view.Version, view.ID)

	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data, "fetched_at", view.FetchedAt.UnixMilli())
	pipe.Expire(ctx, key, mc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %s/%d: %w", view.Version, view.ID, err)
	}
	return nil
}

// Get returns the cached view or domain.ErrNotFound.
func (mc *MarketCache) Get(ctx context.Context, version domain.MarketVersion, id uint64) (domain.MarketView, error) {
	data, err := mc.rdb.HGet(ctx, marketKey(version, id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketView{}, domain.ErrNotFound
		}
		return domain.MarketView{}, fmt.Errorf("redis: get market %s/%d: %w", version, id, err)
	}
	var view domain.MarketView
	if err := json.Unmarshal(data, &view); err != nil {
		return domain.MarketView{}, fmt.Errorf("redis: unmarshal market %s/%d: %w", version, id, err)
	}
	return view, nil
}

// Invalidate drops the cached view so the next read re-fetches it.
func (mc *MarketCache) Invalidate(ctx context.Context, version domain.MarketVersion, id uint64) error {
	if err := mc.rdb.Del(ctx, marketKey(version, id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s/%d: %w", version, id, err)
	}
	return nil
}

var _ domain.MarketViewCache = (*MarketCache)(nil)
