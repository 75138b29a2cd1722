package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/policast/internal/domain"
)

// MarketRefresher re-reads a market and reports whether its view changed.
type MarketRefresher interface {
	Refresh(ctx context.Context, version domain.MarketVersion, id uint64) (domain.MarketView, bool, error)
}

// MarketPublisher announces changed views.
type MarketPublisher interface {
	MarketChanged(ctx context.Context, view domain.MarketView)
}

// MarketRef names one watched market.
type MarketRef struct {
	Version domain.MarketVersion
	ID      uint64
}

// MarketWatcher keeps the cached views of a fixed set of markets fresh and
// publishes the ones that changed.
type MarketWatcher struct {
	markets   MarketRefresher
	publisher MarketPublisher
	refs      []MarketRef
	logger    *slog.Logger
}

// NewMarketWatcher creates a MarketWatcher for refs.
func NewMarketWatcher(markets MarketRefresher, publisher MarketPublisher, refs []MarketRef, logger *slog.Logger) *MarketWatcher {
	return &MarketWatcher{
		markets:   markets,
		publisher: publisher,
		refs:      refs,
		logger:    logger.With(slog.String("component", "market_watcher")),
	}
}

// Run refreshes every watched market once. A market that fails to read is
// logged and skipped; Run only fails when ctx ends.
func (w *MarketWatcher) Run(ctx context.Context) (int, error) {
	changed := 0
	for _, ref := range w.refs {
		if err := ctx.Err(); err != nil {
			return changed, fmt.Errorf("market watcher context cancelled: %w", err)
		}
		view, diff, err := w.markets.Refresh(ctx, ref.Version, ref.ID)
		if err != nil {
			w.logger.WarnContext(ctx, "market refresh failed",
				slog.String("version", string(ref.Version)),
				slog.Uint64("market_id", ref.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !diff {
			continue
		}
		changed++
		if w.publisher != nil {
			w.publisher.MarketChanged(ctx, view)
		}
	}
	w.logger.DebugContext(ctx, "market refresh complete",
		slog.Int("watched", len(w.refs)),
		slog.Int("changed", changed),
	)
	return changed, nil
}

// RunLoop runs the watcher on a repeating interval until ctx is cancelled.
func (w *MarketWatcher) RunLoop(ctx context.Context, interval time.Duration) error {
	if len(w.refs) == 0 {
		w.logger.InfoContext(ctx, "no markets to watch")
		<-ctx.Done()
		return ctx.Err()
	}
	return every(ctx, interval, func() {
		if _, err := w.Run(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "market watch failed", slog.String("error", err.Error()))
		}
	})
}

// every calls fn immediately and then on each tick until ctx ends.
func every(ctx context.Context, interval time.Duration, fn func()) error {
	if interval <= 0 {
		interval = time.Minute
	}
	fn()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn()
		}
	}
}
