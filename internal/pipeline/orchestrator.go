package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Intervals sets how often each background loop runs.
type Intervals struct {
	Market  time.Duration
	Account time.Duration
	Archive time.Duration
}

// Pipeline runs the background loops: market watching, account watching
// and history archival. Any of them may be nil.
type Pipeline struct {
	markets   *MarketWatcher
	accounts  *AccountWatcher
	archiver  *Archiver
	intervals Intervals
	logger    *slog.Logger
}

// New creates a Pipeline.
func New(markets *MarketWatcher, accounts *AccountWatcher, archiver *Archiver, intervals Intervals, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		markets:   markets,
		accounts:  accounts,
		archiver:  archiver,
		intervals: intervals,
		logger:    logger.With(slog.String("component", "pipeline")),
	}
}

// Run starts every configured loop in an errgroup and blocks until ctx is
// cancelled or one of them fails.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "pipeline starting",
		slog.Duration("market_interval", p.intervals.Market),
		slog.Duration("account_interval", p.intervals.Account),
		slog.Duration("archive_interval", p.intervals.Archive),
	)

	g, ctx := errgroup.WithContext(ctx)
	start := func(name string, loop func(context.Context) error) {
		g.Go(func() error {
			p.logger.InfoContext(ctx, "starting loop", slog.String("loop", name))
			err := loop(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("%s: %w", name, err)
		})
	}

	if p.markets != nil {
		start("market watcher", func(ctx context.Context) error {
			return p.markets.RunLoop(ctx, p.intervals.Market)
		})
	}
	if p.accounts != nil {
		start("account watcher", func(ctx context.Context) error {
			return p.accounts.RunLoop(ctx, p.intervals.Account)
		})
	}
	if p.archiver != nil {
		start("archiver", func(ctx context.Context) error {
			return p.archiver.RunLoop(ctx, p.intervals.Archive)
		})
	}

	if err := g.Wait(); err != nil {
		p.logger.ErrorContext(ctx, "pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}
	p.logger.InfoContext(ctx, "pipeline stopped cleanly")
	return nil
}
