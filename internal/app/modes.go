package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/policast/internal/domain"
	"github.com/alanyoungcy/policast/internal/orchestrator"
	"github.com/alanyoungcy/policast/internal/pipeline"
	"github.com/alanyoungcy/policast/internal/server"
	"github.com/alanyoungcy/policast/internal/server/handler"
	"github.com/alanyoungcy/policast/internal/server/ws"
	"github.com/alanyoungcy/policast/internal/service"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

// services are the read-side services every chain-backed mode shares.
type services struct {
	markets  *service.MarketService
	accounts *service.AccountService
	events   *service.Events
}

func (a *App) buildServices(deps *Dependencies) *services {
	spenders := []common.Address{deps.Contracts.MarketV2.Address}
	if v1 := deps.Contracts.MarketV1.Address; v1 != (common.Address{}) {
		spenders = append(spenders, v1)
	}
	markets := service.NewMarketService(deps.Chain, deps.MarketCache, a.logger)
	accounts := service.NewAccountService(deps.Chain, deps.AccountCache, spenders, a.logger)
	return &services{
		markets:  markets,
		accounts: accounts,
		events:   service.NewEvents(deps.SignalBus, markets, accounts, a.logger),
	}
}

// ServerMode serves the HTTP API and the WebSocket hub.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	if err := a.startServer(ctx, g, deps, a.buildServices(deps)); err != nil {
		return err
	}
	return ignoreCanceled(g.Wait())
}

// WatchMode keeps the watched markets and the signing account fresh in the
// cache and announces changes on the signal bus.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")
	svcs := a.buildServices(deps)
	p := pipeline.New(a.marketWatcher(svcs), a.accountWatcher(deps, svcs), nil, a.intervals(), a.logger)
	return ignoreCanceled(p.Run(ctx))
}

// ArchiveMode moves old purchase history to object storage on a schedule.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	arch := a.archiver(deps)
	if arch == nil {
		return fmt.Errorf("app: archive mode needs postgres and s3")
	}
	p := pipeline.New(nil, nil, arch, a.intervals(), a.logger)
	return ignoreCanceled(p.Run(ctx))
}

// FullMode runs the API, the watchers and the archiver together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)
	if err := a.startServer(ctx, g, deps, svcs); err != nil {
		return err
	}
	p := pipeline.New(a.marketWatcher(svcs), a.accountWatcher(deps, svcs), a.archiver(deps), a.intervals(), a.logger)
	g.Go(func() error { return p.Run(ctx) })
	return ignoreCanceled(g.Wait())
}

// startServer builds the submission services and the HTTP server and adds
// the server, its shutdown and the hub to g.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) error {
	if deps.Wallet == nil {
		return fmt.Errorf("app: %s mode needs a wallet key", a.cfg.Mode)
	}
	if deps.Purchases == nil {
		return fmt.Errorf("app: %s mode needs postgres", a.cfg.Mode)
	}

	orchCfg := orchestrator.Config{
		PerShareSlippageBps: a.cfg.Trading.PerShareSlippageBps,
		TotalCostBufferBps:  a.cfg.Trading.TotalCostBufferBps,
		SellSlippageBps:     a.cfg.Trading.SellSlippageBps,
		MinPurchase:         a.cfg.Trading.MinPurchase,
		MaxPurchase:         a.cfg.Trading.MaxPurchase,
		StatusPollInterval:  a.cfg.Trading.StatusPollInterval.Duration,
	}
	orch := orchestrator.New(deps.Chain, deps.Wallet, deps.Contracts, orchCfg, a.logger,
		orchestrator.WithInvalidator(svcs.events),
		orchestrator.WithObserver(svcs.events),
	)

	var (
		dedup  domain.IntentDeduper = service.NewDedup()
		locker service.Locker
	)
	if deps.Intents != nil {
		dedup = deps.Intents
	}
	if deps.Locks != nil {
		locker = deps.Locks
	}
	subs := service.NewSubmissions(deps.Purchases, dedup, locker, deps.Notifier, service.SubmissionConfig{
		IntentTTL: a.cfg.Trading.IntentTTL.Duration,
		LockTTL:   a.cfg.Trading.AccountLockTTL.Duration,
		LockWait:  a.cfg.Trading.AccountLockWait.Duration,
	}, a.logger)

	var (
		discover    service.Discoverer
		leaderboard handler.LeaderboardSource
		archives    handler.ArchiveLister
	)
	if deps.API != nil {
		discover, leaderboard = deps.API, deps.API
	}
	if deps.Archiver != nil {
		archives = deps.Archiver
	}
	purchases := service.NewPurchaseService(orch, deps.Chain, subs, deps.Purchases, a.logger)
	admin := service.NewAdminService(orch, deps.Chain, deps.Contracts, subs, deps.Audit, discover,
		a.cfg.Trading.MinInitialLiquidity, a.logger)

	account := deps.Wallet.Address().Hex()
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			Account:   account,
			StartedAt: a.startedAt,
		})
		g.Go(func() error { return hub.Run(ctx) })
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(deps.Checks, account, a.logger),
		Markets:   handler.NewMarketHandler(svcs.markets, svcs.accounts, a.logger),
		Purchases: handler.NewPurchaseHandler(purchases, a.logger),
		Admin:     handler.NewAdminHandler(admin, leaderboard, archives, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return nil
}

func (a *App) intervals() pipeline.Intervals {
	return pipeline.Intervals{
		Market:  a.cfg.Watch.MarketInterval.Duration,
		Account: a.cfg.Watch.AccountInterval.Duration,
		Archive: a.cfg.Archive.Interval.Duration,
	}
}

func (a *App) marketWatcher(svcs *services) *pipeline.MarketWatcher {
	refs := make([]pipeline.MarketRef, 0, len(a.cfg.Watch.MarketsV1)+len(a.cfg.Watch.MarketsV2))
	for _, id := range a.cfg.Watch.MarketsV1 {
		refs = append(refs, pipeline.MarketRef{Version: domain.MarketV1, ID: id})
	}
	for _, id := range a.cfg.Watch.MarketsV2 {
		refs = append(refs, pipeline.MarketRef{Version: domain.MarketV2, ID: id})
	}
	if len(refs) == 0 {
		a.logger.Info("no markets configured for watching")
		return nil
	}
	return pipeline.NewMarketWatcher(svcs.markets, svcs.events, refs, a.logger)
}

// accountWatcher watches the signing account; without a key there is
// nothing to watch.
func (a *App) accountWatcher(deps *Dependencies, svcs *services) *pipeline.AccountWatcher {
	if deps.Key == nil {
		return nil
	}
	owner := crypto.PubkeyToAddress(deps.Key.PublicKey).Hex()
	return pipeline.NewAccountWatcher(svcs.accounts, svcs.events, owner, a.logger)
}

func (a *App) archiver(deps *Dependencies) *pipeline.Archiver {
	if deps.Archiver == nil {
		return nil
	}
	return pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
}

// ignoreCanceled treats a shutdown by context cancellation as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
