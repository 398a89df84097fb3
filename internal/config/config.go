// Package config defines the top-level configuration for neonvault and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by NEONVAULT_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Engine   EngineConfig   `toml:"engine"`
	Bridge   BridgeConfig   `toml:"bridge"`
	Indexer  IndexerConfig  `toml:"indexer"`
	Agent    AgentConfig    `toml:"agent"`
	Supabase SupabaseConfig `toml:"supabase"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the signing key used for vault writes.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// HasKey reports whether any key source is configured.
func (w WalletConfig) HasKey() bool {
	return w.PrivateKey != "" || w.EncryptedKeyPath != ""
}

// ChainConfig holds the network and contract addresses of the vault.
type ChainConfig struct {
	RPCURL         string   `toml:"rpc_url"`
	ChainID        int64    `toml:"chain_id"`
	VaultAddress   string   `toml:"vault_address"`
	TokenAddress   string   `toml:"token_address"`
	TokenDecimals  int      `toml:"token_decimals"`
	GasLimit       uint64   `toml:"gas_limit"`
	ReceiptTimeout duration `toml:"receipt_timeout"`
	ConfirmPoll    duration `toml:"confirm_poll"`
	RPCRatePerSec  float64  `toml:"rpc_rate_per_sec"`
}

// EngineConfig holds the fixed parameters of the derived-state engine.
type EngineConfig struct {
	PageSize        int      `toml:"page_size"`
	LockPeriod      duration `toml:"lock_period"`
	BondRate        float64  `toml:"bond_rate"`
	TickInterval    duration `toml:"tick_interval"`
	RewardThreshold uint64   `toml:"reward_threshold"`
	RefetchDelay    duration `toml:"refetch_delay"`
	// SessionIdle is how long an account view nobody follows is kept.
	SessionIdle duration `toml:"session_idle"`
}

// BridgeChain describes one source network of the bridge.
type BridgeChain struct {
	Name           string `toml:"name"`
	ChainID        int64  `toml:"chain_id"`
	RPCURL         string `toml:"rpc_url"`
	Domain         uint32 `toml:"domain"`
	TokenAddress   string `toml:"token_address"`
	TokenMessenger string `toml:"token_messenger"`
}

// BridgeConfig holds cross-chain transfer parameters.
type BridgeConfig struct {
	Enabled            bool          `toml:"enabled"`
	AttestationURL     string        `toml:"attestation_url"`
	Destination        string        `toml:"destination"`
	DestinationDomain  uint32        `toml:"destination_domain"`
	MessageTransmitter string        `toml:"message_transmitter"`
	DefaultSource      string        `toml:"default_source"`
	PollInterval       duration      `toml:"poll_interval"`
	Timeout            duration      `toml:"timeout"`
	RatePerSec         float64       `toml:"rate_per_sec"`
	SwitchDelay        duration      `toml:"switch_delay"`
	Sources            []BridgeChain `toml:"sources"`
}

// IndexerConfig holds chain polling parameters.
type IndexerConfig struct {
	Enabled        bool     `toml:"enabled"`
	Interval       duration `toml:"interval"`
	WatchAddresses []string `toml:"watch_addresses"`
}

// Fixture is one football match the agent turns into a market.
type Fixture struct {
	Home   string `toml:"home"`
	Away   string `toml:"away"`
	League string `toml:"league"`
}

// AgentConfig holds the market-creation agent parameters.
type AgentConfig struct {
	Enabled         bool      `toml:"enabled"`
	Schedule        string    `toml:"schedule"`
	MarketDuration  duration  `toml:"market_duration"`
	NewsFeedURL     string    `toml:"news_feed_url"`
	NewsKeywords    []string  `toml:"news_keywords"`
	MaxNewsMarkets  int       `toml:"max_news_markets"`
	Fixtures        []Fixture `toml:"fixtures"`
	// PriceAPIKey enables the crypto price-target market; empty disables it.
	PriceAPIURL     string    `toml:"price_api_url"`
	PriceAPIKey     string    `toml:"price_api_key"`
	CryptoSymbol    string    `toml:"crypto_symbol"`
	ResolveEnabled  bool      `toml:"resolve_enabled"`
	ResolveSchedule string    `toml:"resolve_schedule"`
	ResolveOutcome  bool      `toml:"resolve_outcome"`
	ResolvePause    duration  `toml:"resolve_pause"`
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
	KeyPrefix  string `toml:"key_prefix"`
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
	Prefix         string `toml:"prefix"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
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
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
}

// NotifyConfig holds operator notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	TTL               duration `toml:"ttl"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:         "https://rpc.testnet.arc.network",
			ChainID:        5042002,
			VaultAddress:   "0x4cef015F86a4df13676b12616B00126Bd7b6Fab8",
			TokenAddress:   "0x3600000000000000000000000000000000000000",
			TokenDecimals:  6,
			GasLimit:       1_000_000,
			ReceiptTimeout: duration{2 * time.Minute},
			ConfirmPoll:    duration{2 * time.Second},
			RPCRatePerSec:  10,
		},
		Engine: EngineConfig{
			PageSize:        6,
			LockPeriod:      duration{30 * 24 * time.Hour},
			BondRate:        0.05,
			TickInterval:    duration{time.Second},
			RewardThreshold: 1000,
			RefetchDelay:    duration{2 * time.Second},
			SessionIdle:     duration{10 * time.Minute},
		},
		Bridge: BridgeConfig{
			Enabled:            false,
			AttestationURL:     "https://iris-api-sandbox.circle.com",
			Destination:        "Arc_Testnet",
			DestinationDomain:  26,
			MessageTransmitter: "0xE737e5cEBEEBa77EFE34D4aa090756590b1CE275",
			DefaultSource:      "Ethereum_Sepolia",
			PollInterval:       duration{5 * time.Second},
			Timeout:            duration{30 * time.Minute},
			RatePerSec:         1,
			SwitchDelay:        duration{2 * time.Second},
			Sources: []BridgeChain{
				{Name: "Ethereum_Sepolia", ChainID: 11155111, RPCURL: "https://ethereum-sepolia-rpc.publicnode.com", Domain: 0,
					TokenAddress: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238", TokenMessenger: "0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA"},
				{Name: "Base_Sepolia", ChainID: 84532, RPCURL: "https://sepolia.base.org", Domain: 6,
					TokenAddress: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", TokenMessenger: "0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA"},
			},
		},
		Indexer: IndexerConfig{
			Enabled:  true,
			Interval: duration{15 * time.Second},
		},
		Agent: AgentConfig{
			Enabled:        false,
			Schedule:       "0 */15 * * * *",
			MarketDuration: duration{7200 * time.Second},
			NewsFeedURL:    "https://finance.yahoo.com/news/rssindex",
			NewsKeywords:   []string{"STOCKS", "CRYPTO", "FED", "USDC", "TECH", "AI"},
			MaxNewsMarkets: 2,
			Fixtures: []Fixture{
				{Home: "Liverpool", Away: "Man City", League: "EPL"},
				{Home: "Valencia", Away: "Real Madrid", League: "La Liga"},
				{Home: "PSG", Away: "Marseille", League: "Ligue 1"},
				{Home: "Juventus", Away: "Lazio", League: "Serie A"},
				{Home: "Arsenal", Away: "Man City (WSL)", League: "Football"},
			},
			PriceAPIURL:     "https://pro-api.coinmarketcap.com",
			CryptoSymbol:    "BTC",
			ResolveEnabled:  false,
			ResolveSchedule: "0 0 * * * *",
			ResolveOutcome:  false,
			ResolvePause:    duration{500 * time.Millisecond},
		},
		Supabase: SupabaseConfig{
			DSN:           "",
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
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			KeyPrefix:  "neonvault:",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "neonvault-archive",
			UseSSL:         false,
			ForcePathStyle: true,
			Prefix:         "archive/",
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Cron:          "0 0 3 * * *",
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
		},
		Notify: NotifyConfig{
			Events: []string{"market_created", "market_resolved", "bridge_completed", "error"},
			TTL:    duration{10 * time.Second},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"indexer": true,
	"agent":   true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, indexer, agent, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet: the agent submits transactions, everything else can run read-only.
	needsWallet := c.Mode == "agent" || (c.Mode == "full" && c.Agent.Enabled)
	if needsWallet && !c.Wallet.HasKey() {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if !common.IsHexAddress(c.Chain.VaultAddress) {
		errs = append(errs, fmt.Sprintf("chain: vault_address %q is not a hex address", c.Chain.VaultAddress))
	}
	if !common.IsHexAddress(c.Chain.TokenAddress) {
		errs = append(errs, fmt.Sprintf("chain: token_address %q is not a hex address", c.Chain.TokenAddress))
	}
	if c.Chain.TokenDecimals < 0 || c.Chain.TokenDecimals > 36 {
		errs = append(errs, fmt.Sprintf("chain: token_decimals must be 0-36, got %d", c.Chain.TokenDecimals))
	}

	// Engine
	if c.Engine.PageSize < 1 {
		errs = append(errs, "engine: page_size must be >= 1")
	}
	if c.Engine.LockPeriod.Duration < 0 {
		errs = append(errs, "engine: lock_period must not be negative")
	}
	if c.Engine.BondRate < 0 {
		errs = append(errs, "engine: bond_rate must not be negative")
	}
	if c.Engine.TickInterval.Duration <= 0 {
		errs = append(errs, "engine: tick_interval must be > 0")
	}
	if c.Engine.RewardThreshold == 0 {
		errs = append(errs, "engine: reward_threshold must be > 0")
	}
	if c.Engine.SessionIdle.Duration <= 0 {
		errs = append(errs, "engine: session_idle must be > 0")
	}

	// Bridge
	if c.Bridge.Enabled {
		if c.Bridge.AttestationURL == "" {
			errs = append(errs, "bridge: attestation_url must not be empty when enabled")
		}
		if len(c.Bridge.Sources) == 0 {
			errs = append(errs, "bridge: at least one source chain is required when enabled")
		}
		for _, s := range c.Bridge.Sources {
			if !common.IsHexAddress(s.TokenAddress) || !common.IsHexAddress(s.TokenMessenger) {
				errs = append(errs, fmt.Sprintf("bridge: source %q needs token_address and token_messenger", s.Name))
			}
		}
	}

	// Indexer
	if c.Indexer.Enabled && c.Indexer.Interval.Duration <= 0 {
		errs = append(errs, "indexer: interval must be > 0 when enabled")
	}
	for _, a := range c.Indexer.WatchAddresses {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Sprintf("indexer: watch address %q is not a hex address", a))
		}
	}

	// Agent
	if c.Agent.Enabled || c.Mode == "agent" {
		if _, err := cronParser.Parse(c.Agent.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("agent: schedule %q: %v", c.Agent.Schedule, err))
		}
		if c.Agent.MarketDuration.Duration < time.Minute {
			errs = append(errs, "agent: market_duration must be at least 1m")
		}
	}
	if c.Agent.ResolveEnabled {
		if _, err := cronParser.Parse(c.Agent.ResolveSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("agent: resolve_schedule %q: %v", c.Agent.ResolveSchedule, err))
		}
	}

	// Supabase
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
	if c.Supabase.PoolMinConns < 0 {
		errs = append(errs, "supabase: pool_min_conns must be >= 0")
	}
	if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
		errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 / archive
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if _, err := cronParser.Parse(c.Archive.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("archive: cron %q: %v", c.Archive.Cron, err))
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
