package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/policast/internal/domain"
	"github.com/alanyoungcy/policast/internal/flow"
)

// MarketEvent is published on domain.ChannelMarkets when a view may have
// changed.
type MarketEvent struct {
	Version  domain.MarketVersion `json:"version"`
	MarketID uint64               `json:"market_id"`
	View     *domain.MarketView   `json:"view,omitempty"`
	At       time.Time            `json:"at"`
}

// AccountEvent is published on domain.ChannelAccounts when an account's
// allowance or balance may have changed.
type AccountEvent struct {
	Account string    `json:"account"`
	At      time.Time `json:"at"`
}

// Events publishes flow transitions and post-transaction invalidations. It
// implements orchestrator.Observer and orchestrator.Invalidator.
type Events struct {
	bus      domain.SignalBus
	markets  *MarketService
	accounts *AccountService
	logger   *slog.Logger
}

// NewEvents creates Events. bus may be nil, in which case only the caches
// are invalidated.
func NewEvents(bus domain.SignalBus, markets *MarketService, accounts *AccountService, logger *slog.Logger) *Events {
	return &Events{
		bus:      bus,
		markets:  markets,
		accounts: accounts,
		logger:   logger.With(slog.String("component", "events")),
	}
}

// FlowChanged publishes a FlowEvent.
func (e *Events) FlowChanged(ctx context.Context, intentID, account string, state flow.State) {
	ev := domain.FlowEvent{
		IntentID: intentID,
		Account:  account,
		State:    string(state),
		At:       time.Now().UTC(),
	}
	switch state {
	case flow.Success:
		ev.Outcome = domain.OutcomeSuccess
	case flow.PartialSuccess:
		ev.Outcome = domain.OutcomePartial
	}
	e.publish(ctx, domain.ChannelFlow, ev)
}

// AfterTransaction drops the cached market and account views and tells
// subscribers to re-fetch.
func (e *Events) AfterTransaction(ctx context.Context, account string, version domain.MarketVersion, marketID uint64) {
	ctx = context.WithoutCancel(ctx)
	if e.markets != nil {
		if err := e.markets.Invalidate(ctx, version, marketID); err != nil {
			e.logger.WarnContext(ctx, "invalidate market failed",
				slog.Uint64("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.accounts != nil {
		if err := e.accounts.Invalidate(ctx, account); err != nil {
			e.logger.WarnContext(ctx, "invalidate account failed",
				slog.String("account", account),
				slog.String("error", err.Error()),
			)
		}
	}
	now := time.Now().UTC()
	e.publish(ctx, domain.ChannelMarkets, MarketEvent{Version: version, MarketID: marketID, At: now})
	e.publish(ctx, domain.ChannelAccounts, AccountEvent{Account: account, At: now})
}

// MarketChanged publishes a refreshed view.
func (e *Events) MarketChanged(ctx context.Context, view domain.MarketView) {
	e.publish(ctx, domain.ChannelMarkets, MarketEvent{
		Version:  view.Version,
		MarketID: view.ID,
		View:     &view,
		At:       time.Now().UTC(),
	})
}

// AccountChanged publishes an account refresh.
func (e *Events) AccountChanged(ctx context.Context, account string) {
	e.publish(ctx, domain.ChannelAccounts, AccountEvent{Account: account, At: time.Now().UTC()})
}

func (e *Events) publish(ctx context.Context, channel string, v any) {
	if e.bus == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		e.logger.ErrorContext(ctx, "marshal event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := e.bus.Publish(ctx, channel, data); err != nil {
		e.logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
