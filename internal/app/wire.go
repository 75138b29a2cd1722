package app

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	s3blob "github.com/alanyoungcy/policast/internal/blob/s3"
	"github.com/alanyoungcy/policast/internal/cache/redis"
	"github.com/alanyoungcy/policast/internal/chain"
	"github.com/alanyoungcy/policast/internal/config"
	"github.com/alanyoungcy/policast/internal/contracts"
	"github.com/alanyoungcy/policast/internal/crypto"
	"github.com/alanyoungcy/policast/internal/domain"
	"github.com/alanyoungcy/policast/internal/notify"
	"github.com/alanyoungcy/policast/internal/platform/policast"
	"github.com/alanyoungcy/policast/internal/server/handler"
	"github.com/alanyoungcy/policast/internal/store/postgres"
)

// Dependencies bundles the concrete infrastructure the modes build their
// services from. Fields a mode does not need stay nil.
type Dependencies struct {
	// Chain
	Contracts *contracts.Set
	Chain     *chain.Client
	Wallet    *chain.Wallet
	// Key is the signing key; nil when none is configured.
	Key *ecdsa.PrivateKey

	// Stores
	Purchases *postgres.PurchaseStore
	Audit     domain.AuditStore

	// Caches
	MarketCache  domain.MarketViewCache
	AccountCache domain.AccountCache
	Intents      domain.IntentDeduper
	Locks        *redis.LockManager
	RateLimiter  domain.RateLimiter
	SignalBus    domain.SignalBus

	// Blob storage
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier

	// API is the hosted Policast API client; nil when not configured.
	API *policast.Client

	// Checks are the dependency probes served by /api/health.
	Checks map[string]handler.Check
}

func needsChain(mode string) bool {
	switch mode {
	case "server", "watch", "full":
		return true
	default:
		return false
	}
}

func needsRedis(mode string) bool { return needsChain(mode) }

func needsPostgres(mode string) bool {
	switch mode {
	case "server", "archive", "full":
		return true
	default:
		return false
	}
}

func needsS3(mode string) bool {
	switch mode {
	case "archive", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- Signing key ---
	if cfg.NeedsWallet() || cfg.Wallet.PrivateKey != "" || cfg.Wallet.KeyFile != "" {
		key, err := crypto.LoadKey(crypto.KeySource{
			RawPrivateKey: cfg.Wallet.PrivateKey,
			KeyFile:       cfg.Wallet.KeyFile,
			Password:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: wallet key: %w", err))
		}
		deps.Key = key
	}

	// --- Chain ---
	if needsChain(mode) {
		set, err := contracts.Load(contracts.Addresses{
			Token:    cfg.Contracts.Token,
			MarketV1: cfg.Contracts.MarketV1,
			MarketV2: cfg.Contracts.MarketV2,
			Views:    cfg.Contracts.Views,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: contracts: %w", err))
		}
		deps.Contracts = set

		eth, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return fail(fmt.Errorf("wire: dial rpc: %w", err))
		}
		closers = append(closers, eth.Close)
		deps.Chain = chain.NewClient(eth, set, logger)
		deps.Checks["rpc"] = func(ctx context.Context) error {
			_, err := eth.BlockNumber(ctx)
			return err
		}

		if deps.Key != nil && cfg.NeedsWallet() {
			var batch chain.RPCCaller
			if cfg.Chain.WalletRPCURL != "" {
				rc, err := rpc.DialContext(ctx, cfg.Chain.WalletRPCURL)
				if err != nil {
					return fail(fmt.Errorf("wire: dial wallet rpc: %w", err))
				}
				closers = append(closers, rc.Close)
				batch = rc
			}
			deps.Wallet = chain.NewWallet(eth, batch, deps.Key, set, chain.WalletConfig{
				ChainID:                big.NewInt(cfg.Chain.ChainID),
				GasHeadroomPct:         uint64(cfg.Chain.GasHeadroomPct),
				ReceiptPollInterval:    cfg.Chain.ReceiptPollInterval.Duration,
				Connector:              cfg.Chain.Connector,
				IncompatibleConnectors: cfg.Chain.IncompatibleConnectors,
				BatchEnabled:           cfg.Chain.BatchEnabled,
				ProbeCapabilities:      cfg.Chain.ProbeCapabilities,
			}, logger)
		}
	}

	// --- PostgreSQL ---
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.Migrate(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		deps.Purchases = pgClient.Purchases()
		deps.Audit = pgClient.Audit()
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if needsRedis(mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			MasterName: cfg.Redis.MasterName,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Watch.MarketTTL.Duration)
		deps.AccountCache = redis.NewAccountCache(redisClient)
		deps.Intents = redis.NewIntentCache(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 blob storage ---
	if needsS3(mode) {
		blobs, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if deps.Purchases != nil {
			deps.Archiver = s3blob.NewArchiver(
				blobs,
				blobs,
				deps.Purchases,
				deps.Audit,
				cfg.Archive.Prefix,
			)
		}
		deps.Checks["s3"] = blobs.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Hosted API ---
	if cfg.API.BaseURL != "" {
		deps.API = policast.NewClient(cfg.API.BaseURL, cfg.API.Timeout.Duration)
	}

	return deps, cleanup, nil
}
