package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path (skipped when empty), merges it on top of the
// built-in defaults, applies POLICAST_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLICAST_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLICAST_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.KeyFile, "POLICAST_WALLET_KEY_FILE")
	setStr(&cfg.Wallet.KeyPassword, "POLICAST_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "POLICAST_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "POLICAST_CHAIN_ID")
	setStr(&cfg.Chain.WalletRPCURL, "POLICAST_CHAIN_WALLET_RPC_URL")
	setStr(&cfg.Chain.Connector, "POLICAST_CHAIN_CONNECTOR")
	setStringSlice(&cfg.Chain.IncompatibleConnectors, "POLICAST_CHAIN_INCOMPATIBLE_CONNECTORS")
	setBool(&cfg.Chain.BatchEnabled, "POLICAST_CHAIN_BATCH_ENABLED")
	setBool(&cfg.Chain.ProbeCapabilities, "POLICAST_CHAIN_PROBE_CAPABILITIES")
	setInt(&cfg.Chain.GasHeadroomPct, "POLICAST_CHAIN_GAS_HEADROOM_PCT")
	setDuration(&cfg.Chain.ReceiptPollInterval, "POLICAST_CHAIN_RECEIPT_POLL_INTERVAL")

	// ── Contracts ──
	setStr(&cfg.Contracts.Token, "POLICAST_CONTRACTS_TOKEN")
	setStr(&cfg.Contracts.MarketV1, "POLICAST_CONTRACTS_MARKET_V1")
	setStr(&cfg.Contracts.MarketV2, "POLICAST_CONTRACTS_MARKET_V2")
	setStr(&cfg.Contracts.Views, "POLICAST_CONTRACTS_VIEWS")

	// ── Trading ──
	setInt64(&cfg.Trading.PerShareSlippageBps, "POLICAST_TRADING_PER_SHARE_SLIPPAGE_BPS")
	setInt64(&cfg.Trading.TotalCostBufferBps, "POLICAST_TRADING_TOTAL_COST_BUFFER_BPS")
	setInt64(&cfg.Trading.SellSlippageBps, "POLICAST_TRADING_SELL_SLIPPAGE_BPS")
	setStr(&cfg.Trading.MinPurchase, "POLICAST_TRADING_MIN_PURCHASE")
	setStr(&cfg.Trading.MaxPurchase, "POLICAST_TRADING_MAX_PURCHASE")
	setStr(&cfg.Trading.MinInitialLiquidity, "POLICAST_TRADING_MIN_INITIAL_LIQUIDITY")
	setDuration(&cfg.Trading.StatusPollInterval, "POLICAST_TRADING_STATUS_POLL_INTERVAL")
	setDuration(&cfg.Trading.IntentTTL, "POLICAST_TRADING_INTENT_TTL")
	setDuration(&cfg.Trading.AccountLockTTL, "POLICAST_TRADING_ACCOUNT_LOCK_TTL")
	setDuration(&cfg.Trading.AccountLockWait, "POLICAST_TRADING_ACCOUNT_LOCK_WAIT")

	// ── Watch ──
	setUintSlice(&cfg.Watch.MarketsV1, "POLICAST_WATCH_MARKETS_V1")
	setUintSlice(&cfg.Watch.MarketsV2, "POLICAST_WATCH_MARKETS_V2")
	setDuration(&cfg.Watch.MarketInterval, "POLICAST_WATCH_MARKET_INTERVAL")
	setDuration(&cfg.Watch.AccountInterval, "POLICAST_WATCH_ACCOUNT_INTERVAL")
	setDuration(&cfg.Watch.MarketTTL, "POLICAST_WATCH_MARKET_TTL")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "POLICAST_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "POLICAST_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "POLICAST_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "POLICAST_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "POLICAST_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "POLICAST_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "POLICAST_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "POLICAST_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "POLICAST_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "POLICAST_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "POLICAST_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLICAST_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLICAST_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLICAST_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLICAST_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLICAST_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLICAST_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.MasterName, "POLICAST_REDIS_MASTER_NAME")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POLICAST_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLICAST_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLICAST_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLICAST_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLICAST_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLICAST_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLICAST_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "POLICAST_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "POLICAST_ARCHIVE_INTERVAL")
	setStr(&cfg.Archive.Prefix, "POLICAST_ARCHIVE_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLICAST_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLICAST_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLICAST_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLICAST_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "POLICAST_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLICAST_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLICAST_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLICAST_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLICAST_NOTIFY_EVENTS")

	// ── API ──
	setStr(&cfg.API.BaseURL, "POLICAST_API_BASE_URL")
	setDuration(&cfg.API.Timeout, "POLICAST_API_TIMEOUT")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLICAST_MODE")
	setStr(&cfg.LogLevel, "POLICAST_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUintSlice(dst *[]uint64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []uint64
	for _, p := range strings.Split(v, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return
		}
		out = append(out, n)
	}
	*dst = out
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
