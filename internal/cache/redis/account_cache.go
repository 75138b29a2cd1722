package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/policast/internal/domain"
)

const accountTTL = 10 * time.Minute

// AccountCache implements domain.AccountCache using one hash per
// owner/spender pair. Amounts are stored as base-10 integers.
//
// Key schema:
//
//	policast:account:{owner}:{spender} - hash {allowance, balance, decimals, symbol, ts}
type AccountCache struct {
	rdb redis.UniversalClient
}

// NewAccountCache creates an AccountCache backed by the given Client.
func NewAccountCache(c *Client) *AccountCache {
	return &AccountCache{rdb: c.rdb}
}

func accountKey(owner, spender string) string {
	return keyPrefix + "account:" + strings.ToLower(owner) + ":" + strings.ToLower(spender)
}

// SetAllowance stores the latest read for the pair.
func (ac *AccountCache) SetAllowance(ctx context.Context, st domain.AllowanceState) error {
	key := accountKey(st.Owner, st.Spender)
	fields := map[string]any{
		"allowance": bigString(st.CurrentAllowance),
		"balance":   bigString(st.Balance),
		"decimals":  strconv.Itoa(int(st.Decimals)),
		"symbol":    st.Symbol,
		"ts":        strconv.FormatInt(st.ReadAt.UnixNano(), 10),
	}
	pipe := ac.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, accountTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set allowance %s: %w", st.Owner, err)
	}
	return nil
}

// GetAllowance returns the cached read or domain.ErrNotFound.
func (ac *AccountCache) GetAllowance(ctx context.Context, owner, spender string) (domain.AllowanceState, error) {
	vals, err := ac.rdb.HGetAll(ctx, accountKey(owner, spender)).Result()
	if err != nil {
		return domain.AllowanceState{}, fmt.Errorf("redis: get allowance %s: %w", owner, err)
	}
	if len(vals) == 0 {
		return domain.AllowanceState{}, domain.ErrNotFound
	}
	return decodeAllowance(owner, spender, vals)
}

func decodeAllowance(owner, spender string, vals map[string]string) (domain.AllowanceState, error) {
	st := domain.AllowanceState{Owner: owner, Spender: spender, Symbol: vals["symbol"]}
	var ok bool
	if st.CurrentAllowance, ok = new(big.Int).SetString(vals["allowance"], 10); !ok {
		return domain.AllowanceState{}, fmt.Errorf("redis: corrupt allowance for %s", owner)
	}
	if st.Balance, ok = new(big.Int).SetString(vals["balance"], 10); !ok {
		return domain.AllowanceState{}, fmt.Errorf("redis: corrupt balance for %s", owner)
	}
	dec, err := strconv.ParseUint(vals["decimals"], 10, 8)
	if err != nil {
		return domain.AllowanceState{}, fmt.Errorf("redis: corrupt decimals for %s: %w", owner, err)
	}
	st.Decimals = uint8(dec)
	ns, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.AllowanceState{}, fmt.Errorf("redis: corrupt timestamp for %s: %w", owner, err)
	}
	st.ReadAt = time.Unix(0, ns).UTC()
	return st, nil
}

// InvalidateAccount drops every cached pair for owner.
func (ac *AccountCache) InvalidateAccount(ctx context.Context, owner string) error {
	pattern := accountKey(owner, "*")
	iter := ac.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis: scan account %s: %w", owner, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := ac.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: invalidate account %s: %w", owner, err)
	}
	return nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

var _ domain.AccountCache = (*AccountCache)(nil)
