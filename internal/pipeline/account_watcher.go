package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// AccountRefresher reloads an account's balance and allowances into the
// cache.
type AccountRefresher interface {
	RefreshAccount(ctx context.Context, owner string) error
}

// AccountPublisher announces refreshed accounts.
type AccountPublisher interface {
	AccountChanged(ctx context.Context, account string)
}

// AccountWatcher refreshes the signing account's cached token state. The
// orchestrator never relies on it; it keeps the API's account view warm.
type AccountWatcher struct {
	accounts  AccountRefresher
	publisher AccountPublisher
	owner     string
	logger    *slog.Logger
}

// NewAccountWatcher creates an AccountWatcher for owner.
func NewAccountWatcher(accounts AccountRefresher, publisher AccountPublisher, owner string, logger *slog.Logger) *AccountWatcher {
	return &AccountWatcher{
		accounts:  accounts,
		publisher: publisher,
		owner:     owner,
		logger:    logger.With(slog.String("component", "account_watcher")),
	}
}

// Run refreshes the account once.
func (w *AccountWatcher) Run(ctx context.Context) error {
	if err := w.accounts.RefreshAccount(ctx, w.owner); err != nil {
		return err
	}
	if w.publisher != nil {
		w.publisher.AccountChanged(ctx, w.owner)
	}
	return nil
}

// RunLoop refreshes on interval until ctx is cancelled.
func (w *AccountWatcher) RunLoop(ctx context.Context, interval time.Duration) error {
	return every(ctx, interval, func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			w.logger.WarnContext(ctx, "account refresh failed",
				slog.String("account", w.owner),
				slog.String("error", err.Error()),
			)
		}
	})
}
