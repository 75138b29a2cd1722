package domain

import (
	"context"
	"time"
)

// MarketViewCache holds recently fetched market projections.
type MarketViewCache interface {
	Set(ctx context.Context, view MarketView) error
	Get(ctx context.Context, version MarketVersion, id uint64) (MarketView, error)
	Invalidate(ctx context.Context, version MarketVersion, id uint64) error
}

// AccountCache holds the last allowance/balance read per owner and spender.
type AccountCache interface {
	SetAllowance(ctx context.Context, state AllowanceState) error
	GetAllowance(ctx context.Context, owner, spender string) (AllowanceState, error)
	InvalidateAccount(ctx context.Context, owner string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// BusMessage is one payload received from the bus.
type BusMessage struct {
	Channel string
	Payload []byte
}

// SignalBus provides pub/sub fan-out of flow and refresh events.
// Subscribe listens on every channel given until ctx ends.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan BusMessage, error)
}

// Bus channels.
const (
	ChannelFlow     = "policast:flow"
	ChannelMarkets  = "policast:markets"
	ChannelAccounts = "policast:accounts"
)

// FlowEvent is published on ChannelFlow whenever a submission changes state.
type FlowEvent struct {
	IntentID string    `json:"intent_id"`
	Account  string    `json:"account"`
	State    string    `json:"state"`
	Outcome  Outcome   `json:"outcome,omitempty"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}

// IntentDeduper refuses a submission id seen within a TTL window.
type IntentDeduper interface {
	Claim(ctx context.Context, id string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, id string) error
}
