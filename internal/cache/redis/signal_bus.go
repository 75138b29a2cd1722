package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/policast/internal/domain"
)

const subscriberBuffer = 128

// SignalBus is domain.SignalBus over Redis Pub/Sub. Events are ephemeral:
// a subscriber that is not connected misses them and re-reads state.
type SignalBus struct {
	rdb redis.UniversalClient
}

// NewSignalBus creates a SignalBus on c.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.rdb}
}

// Publish sends payload to channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens one connection listening on all channels. Glob patterns
// go through PSUBSCRIBE; messages carry the concrete channel either way.
func (sb *SignalBus) Subscribe(ctx context.Context, channels ...string) (<-chan domain.BusMessage, error) {
	if len(channels) == 0 {
		return nil, errors.New("redis: subscribe: no channels")
	}
	plain, patterns := splitPatterns(channels)
	names := strings.Join(channels, ",")

	pubsub := sb.rdb.Subscribe(ctx)
	err := func() error {
		if len(plain) > 0 {
			if err := pubsub.Subscribe(ctx, plain...); err != nil {
				return err
			}
		}
		if len(patterns) > 0 {
			if err := pubsub.PSubscribe(ctx, patterns...); err != nil {
				return err
			}
		}
		_, err := pubsub.Receive(ctx)
		return err
	}()
	if err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", names, err)
	}

	out := make(chan domain.BusMessage, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel(redis.WithChannelSize(subscriberBuffer))
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- domain.BusMessage{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func splitPatterns(channels []string) (plain, patterns []string) {
	for _, ch := range channels {
		if hasPattern(ch) {
			patterns = append(patterns, ch)
		} else {
			plain = append(plain, ch)
		}
	}
	return plain, patterns
}

func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

var _ domain.SignalBus = (*SignalBus)(nil)
