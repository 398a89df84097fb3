package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies NEONVAULT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// LoadOptional behaves like Load but falls back to the defaults when path
// does not exist. The CLI uses it so a bare environment is enough.
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := Defaults()
		_ = godotenv.Load()
		applyEnvOverrides(&cfg)
		return &cfg, nil
	}
	return Load(path)
}

// applyEnvOverrides reads well-known NEONVAULT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "NEONVAULT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.PrivateKey, "PRIVATE_KEY") // compatibility alias
	setStr(&cfg.Wallet.EncryptedKeyPath, "NEONVAULT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "NEONVAULT_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "VITE_ARC_RPC_URL") // compatibility alias
	setStr(&cfg.Chain.RPCURL, "NEONVAULT_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "NEONVAULT_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.VaultAddress, "VITE_CONTRACT_ADDRESS") // compatibility alias
	setStr(&cfg.Chain.VaultAddress, "NEONVAULT_CHAIN_VAULT_ADDRESS")
	setStr(&cfg.Chain.TokenAddress, "NEONVAULT_CHAIN_TOKEN_ADDRESS")
	setInt(&cfg.Chain.TokenDecimals, "NEONVAULT_CHAIN_TOKEN_DECIMALS")
	setUint64(&cfg.Chain.GasLimit, "NEONVAULT_CHAIN_GAS_LIMIT")
	setDuration(&cfg.Chain.ReceiptTimeout, "NEONVAULT_CHAIN_RECEIPT_TIMEOUT")
	setDuration(&cfg.Chain.ConfirmPoll, "NEONVAULT_CHAIN_CONFIRM_POLL")
	setFloat64(&cfg.Chain.RPCRatePerSec, "NEONVAULT_CHAIN_RPC_RATE_PER_SEC")

	// ── Engine ──
	setInt(&cfg.Engine.PageSize, "NEONVAULT_ENGINE_PAGE_SIZE")
	setDuration(&cfg.Engine.LockPeriod, "NEONVAULT_ENGINE_LOCK_PERIOD")
	setFloat64(&cfg.Engine.BondRate, "NEONVAULT_ENGINE_BOND_RATE")
	setDuration(&cfg.Engine.TickInterval, "NEONVAULT_ENGINE_TICK_INTERVAL")
	setUint64(&cfg.Engine.RewardThreshold, "NEONVAULT_ENGINE_REWARD_THRESHOLD")
	setDuration(&cfg.Engine.RefetchDelay, "NEONVAULT_ENGINE_REFETCH_DELAY")
	setDuration(&cfg.Engine.SessionIdle, "NEONVAULT_ENGINE_SESSION_IDLE")

	// ── Bridge ──
	setBool(&cfg.Bridge.Enabled, "NEONVAULT_BRIDGE_ENABLED")
	setStr(&cfg.Bridge.AttestationURL, "NEONVAULT_BRIDGE_ATTESTATION_URL")
	setStr(&cfg.Bridge.DefaultSource, "NEONVAULT_BRIDGE_DEFAULT_SOURCE")
	setDuration(&cfg.Bridge.PollInterval, "NEONVAULT_BRIDGE_POLL_INTERVAL")
	setDuration(&cfg.Bridge.Timeout, "NEONVAULT_BRIDGE_TIMEOUT")

	// ── Indexer ──
	setBool(&cfg.Indexer.Enabled, "NEONVAULT_INDEXER_ENABLED")
	setDuration(&cfg.Indexer.Interval, "NEONVAULT_INDEXER_INTERVAL")
	setStringSlice(&cfg.Indexer.WatchAddresses, "NEONVAULT_INDEXER_WATCH_ADDRESSES")

	// ── Agent ──
	setBool(&cfg.Agent.Enabled, "NEONVAULT_AGENT_ENABLED")
	setStr(&cfg.Agent.Schedule, "NEONVAULT_AGENT_SCHEDULE")
	setDuration(&cfg.Agent.MarketDuration, "NEONVAULT_AGENT_MARKET_DURATION")
	setStr(&cfg.Agent.NewsFeedURL, "NEONVAULT_AGENT_NEWS_FEED_URL")
	setStringSlice(&cfg.Agent.NewsKeywords, "NEONVAULT_AGENT_NEWS_KEYWORDS")
	setInt(&cfg.Agent.MaxNewsMarkets, "NEONVAULT_AGENT_MAX_NEWS_MARKETS")
	setStr(&cfg.Agent.PriceAPIURL, "NEONVAULT_AGENT_PRICE_API_URL")
	setStr(&cfg.Agent.PriceAPIKey, "NEONVAULT_AGENT_PRICE_API_KEY")
	setStr(&cfg.Agent.CryptoSymbol, "NEONVAULT_AGENT_CRYPTO_SYMBOL")
	setBool(&cfg.Agent.ResolveEnabled, "NEONVAULT_AGENT_RESOLVE_ENABLED")
	setStr(&cfg.Agent.ResolveSchedule, "NEONVAULT_AGENT_RESOLVE_SCHEDULE")
	setBool(&cfg.Agent.ResolveOutcome, "NEONVAULT_AGENT_RESOLVE_OUTCOME")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "NEONVAULT_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "NEONVAULT_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "NEONVAULT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "NEONVAULT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "NEONVAULT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "NEONVAULT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "NEONVAULT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "NEONVAULT_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "NEONVAULT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "NEONVAULT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "NEONVAULT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "NEONVAULT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "NEONVAULT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "NEONVAULT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "NEONVAULT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "NEONVAULT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "NEONVAULT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "NEONVAULT_REDIS_KEY_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "NEONVAULT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "NEONVAULT_S3_REGION")
	setStr(&cfg.S3.Bucket, "NEONVAULT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "NEONVAULT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "NEONVAULT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "NEONVAULT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "NEONVAULT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "NEONVAULT_S3_PREFIX")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "NEONVAULT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "NEONVAULT_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "NEONVAULT_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "NEONVAULT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "NEONVAULT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "NEONVAULT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "NEONVAULT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "NEONVAULT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NEONVAULT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NEONVAULT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NEONVAULT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NEONVAULT_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.TTL, "NEONVAULT_NOTIFY_TTL")

	// ── Top-level ──
	setStr(&cfg.Mode, "NEONVAULT_MODE")
	setStr(&cfg.LogLevel, "NEONVAULT_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
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
