// Package config defines the top-level configuration for the policast
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLICAST_* environment variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	Chain     ChainConfig     `toml:"chain"`
	Contracts ContractsConfig `toml:"contracts"`
	Trading   TradingConfig   `toml:"trading"`
	Watch     WatchConfig     `toml:"watch"`
	Supabase  SupabaseConfig  `toml:"supabase"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	API       APIConfig       `toml:"api"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig holds the signing key of the service account.
type WalletConfig struct {
	PrivateKey  string `toml:"private_key"`
	KeyFile     string `toml:"key_file"`
	KeyPassword string `toml:"key_password"`
}

// ChainConfig holds the JSON-RPC endpoints and the batch wallet settings.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID int64  `toml:"chain_id"`
	// WalletRPCURL serves wallet_sendCalls / wallet_getCallsStatus. Empty
	// disables batching.
	WalletRPCURL           string   `toml:"wallet_rpc_url"`
	Connector              string   `toml:"connector"`
	IncompatibleConnectors []string `toml:"incompatible_connectors"`
	BatchEnabled           bool     `toml:"batch_enabled"`
	ProbeCapabilities      bool     `toml:"probe_capabilities"`
	GasHeadroomPct         int      `toml:"gas_headroom_pct"`
	ReceiptPollInterval    duration `toml:"receipt_poll_interval"`
}

// ContractsConfig holds the deployed contract addresses.
type ContractsConfig struct {
	Token    string `toml:"token"`
	MarketV1 string `toml:"market_v1"`
	MarketV2 string `toml:"market_v2"`
	Views    string `toml:"views"`
}

// TradingConfig holds slippage tolerances and purchase limits.
type TradingConfig struct {
	PerShareSlippageBps int64    `toml:"per_share_slippage_bps"`
	TotalCostBufferBps  int64    `toml:"total_cost_buffer_bps"`
	SellSlippageBps     int64    `toml:"sell_slippage_bps"`
	MinPurchase         string   `toml:"min_purchase"`
	MaxPurchase         string   `toml:"max_purchase"`
	MinInitialLiquidity string   `toml:"min_initial_liquidity"`
	StatusPollInterval  duration `toml:"status_poll_interval"`
	IntentTTL           duration `toml:"intent_ttl"`
	AccountLockTTL      duration `toml:"account_lock_ttl"`
	AccountLockWait     duration `toml:"account_lock_wait"`
}

// WatchConfig lists the markets the watcher keeps fresh.
type WatchConfig struct {
	MarketsV1       []uint64 `toml:"markets_v1"`
	MarketsV2       []uint64 `toml:"markets_v2"`
	MarketInterval  duration `toml:"market_interval"`
	AccountInterval duration `toml:"account_interval"`
	MarketTTL       duration `toml:"market_ttl"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	MasterName string `toml:"master_name"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls moving old purchase history to object storage.
type ArchiveConfig struct {
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	Prefix        string   `toml:"prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards every mutating route. Empty disables auth.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per minute per client; 0 disables limiting.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// APIConfig points at the hosted Policast API used for admin discovery and
// the leaderboard.
type APIConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:                 "http://localhost:8545",
			ChainID:                84532,
			Connector:              "injected",
			IncompatibleConnectors: []string{"walletconnect", "ledger"},
			BatchEnabled:           true,
			ProbeCapabilities:      true,
			GasHeadroomPct:         20,
			ReceiptPollInterval:    duration{2 * time.Second},
		},
		Trading: TradingConfig{
			PerShareSlippageBps: 1000,
			TotalCostBufferBps:  200,
			SellSlippageBps:     1000,
			MinPurchase:         "0.000001",
			MaxPurchase:         "1000000",
			MinInitialLiquidity: "100",
			StatusPollInterval:  duration{time.Second},
			IntentTTL:           duration{10 * time.Minute},
			AccountLockTTL:      duration{5 * time.Minute},
			AccountLockWait:     duration{5 * time.Second},
		},
		Watch: WatchConfig{
			MarketInterval:  duration{15 * time.Second},
			AccountInterval: duration{30 * time.Second},
			MarketTTL:       duration{time.Minute},
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "policast-data",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
			Prefix:        "purchases",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
		},
		Notify: NotifyConfig{
			Events: []string{"partial", "failure"},
		},
		API: APIConfig{
			Timeout: duration{30 * time.Second},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"watch":   true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsWallet reports whether the mode submits transactions.
func (c *Config) NeedsWallet() bool {
	m := strings.ToLower(c.Mode)
	return m == "server" || m == "full"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, watch, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.NeedsWallet() {
		if c.Wallet.PrivateKey == "" && c.Wallet.KeyFile == "" {
			errs = append(errs, "wallet: either private_key or key_file must be set for mode "+c.Mode)
		}
		if c.Wallet.KeyFile != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when key_file is set")
		}
	}

	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.GasHeadroomPct < 0 || c.Chain.GasHeadroomPct > 200 {
		errs = append(errs, fmt.Sprintf("chain: gas_headroom_pct must be 0-200, got %d", c.Chain.GasHeadroomPct))
	}

	// Addresses are parsed by contracts.Load; only presence is checked here.
	if c.Contracts.Token == "" {
		errs = append(errs, "contracts: token must be set")
	}
	if c.Contracts.MarketV2 == "" {
		errs = append(errs, "contracts: market_v2 must be set")
	}

	if c.Trading.PerShareSlippageBps < 0 || c.Trading.TotalCostBufferBps < 0 || c.Trading.SellSlippageBps < 0 {
		errs = append(errs, "trading: slippage bps must be >= 0")
	}
	if c.Trading.SellSlippageBps >= 10000 {
		errs = append(errs, "trading: sell_slippage_bps must be below 10000")
	}
	if c.Trading.MaxPurchase == "" {
		errs = append(errs, "trading: max_purchase must be set")
	}
	if c.Trading.StatusPollInterval.Duration <= 0 {
		errs = append(errs, "trading: status_poll_interval must be > 0")
	}

	if strings.TrimSpace(c.Supabase.DSN) == "" {
		if c.Supabase.Host == "" {
			errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
		}
		if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
			errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
		}
		if c.Supabase.Database == "" {
			errs = append(errs, "supabase: database must not be empty")
		}
	}
	if c.Supabase.PoolMaxConns < 1 {
		errs = append(errs, "supabase: pool_max_conns must be >= 1")
	}
	if c.Supabase.PoolMinConns < 0 || c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
		errs = append(errs, "supabase: pool_min_conns must be between 0 and pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	archives := strings.EqualFold(c.Mode, "archive") || strings.EqualFold(c.Mode, "full")
	if archives {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
