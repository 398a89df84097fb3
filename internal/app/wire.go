package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/neonslash/neonvault/internal/blob/s3"
	"github.com/neonslash/neonvault/internal/bridge"
	"github.com/neonslash/neonvault/internal/cache/redis"
	"github.com/neonslash/neonvault/internal/chain"
	"github.com/neonslash/neonvault/internal/config"
	"github.com/neonslash/neonvault/internal/crypto"
	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/notify"
	"github.com/neonslash/neonvault/internal/server/handler"
	"github.com/neonslash/neonvault/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function. Stores and blob storage are nil in modes that do
// not need them.
type Dependencies struct {
	// Stores
	MarketStore  domain.MarketStore
	BetStore     domain.BetStore
	AccountStore domain.AccountStore
	AuditStore   domain.AuditStore

	// Caches
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Chain. Vault and Token are read-only when no wallet is configured.
	Vault  *chain.Vault
	Token  *chain.Token
	Bridge *bridge.Dialed

	// Notifications
	Notifier *notify.Notifier

	// Health lists the infrastructure reported by /api/health.
	Health map[string]handler.Pinger
}

// pingFunc adapts a plain function to handler.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// needsPostgres returns true for modes that persist snapshots or read the
// audit log.
func needsPostgres(mode string) bool {
	switch mode {
	case "server", "indexer", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that run the cold-storage archive.
func needsS3(mode string, archive config.ArchiveConfig) bool {
	if !archive.Enabled {
		return false
	}
	switch mode {
	case "indexer", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Health: make(map[string]handler.Pinger)}
	mode := strings.ToLower(cfg.Mode)

	// --- PostgreSQL (only for modes that need persistence) ---
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.BetStore = postgres.NewBetStore(pool)
		deps.AccountStore = postgres.NewAccountStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Health["postgres"] = pgClient
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		KeyPrefix:  cfg.Redis.KeyPrefix,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	// The shared catalog copy outlives a few indexer intervals so a stalled
	// indexer degrades to direct chain reads instead of stale data.
	deps.MarketCache = redis.NewMarketCache(redisClient, 4*cfg.Indexer.Interval.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Health["redis"] = redisClient

	// --- S3 blob storage (only when the archive runs in this mode) ---
	if needsS3(mode, cfg.Archive) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		if deps.MarketStore != nil && deps.AuditStore != nil {
			deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), reader, deps.MarketStore, deps.AuditStore)
		}
		deps.Health["s3"] = pingFunc(s3Client.Health)
	}

	// --- Chain ---
	cd, closeChain, err := DialChain(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, closeChain)
	deps.Vault, deps.Token, deps.Bridge = cd.Vault, cd.Token, cd.Bridge
	deps.Health["chain"] = cd.Ping

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// ChainDeps are the contract bindings of the vault network.
type ChainDeps struct {
	// Vault and Token are read-only when no wallet is configured.
	Vault  *chain.Vault
	Token  *chain.Token
	Bridge *bridge.Dialed // nil unless enabled with a wallet
	Ping   handler.Pinger
}

// DialChain dials the vault network, loads the optional signer and binds the
// vault, token and bridge contracts. The returned cleanup closes every
// connection.
func DialChain(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ChainDeps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	ec, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	closers = append(closers, ec.Close)

	vaultAddr, err := chain.ParseAddress(cfg.Chain.VaultAddress)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: vault address: %w", err)
	}
	tokenAddr, err := chain.ParseAddress(cfg.Chain.TokenAddress)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: token address: %w", err)
	}

	backend := chain.Throttle(ec, cfg.Chain.RPCRatePerSec)

	var (
		signer *crypto.Signer
		tx     *chain.Transactor
	)
	if cfg.Wallet.HasKey() {
		signer, err = crypto.LoadSigner(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		}, cfg.Chain.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		tx = chain.NewTransactor(backend, signer, chain.TransactorConfig{
			FallbackGas: cfg.Chain.GasLimit,
			Poll:        cfg.Chain.ConfirmPoll.Duration,
			WaitTimeout: cfg.Chain.ReceiptTimeout.Duration,
		}, logger)
		logger.InfoContext(ctx, "wallet loaded", slog.String("address", signer.Address().Hex()))
	} else {
		logger.InfoContext(ctx, "no wallet configured; vault bindings are read-only")
	}

	cd := &ChainDeps{
		Vault: chain.NewVault(backend, vaultAddr, tx),
		Token: chain.NewToken(backend, tokenAddr, tx),
		Ping: pingFunc(func(ctx context.Context) error {
			_, err := ec.ChainID(ctx)
			return err
		}),
	}

	if cfg.Bridge.Enabled {
		if signer == nil {
			logger.WarnContext(ctx, "bridge enabled without a wallet; bridge disabled")
			return cd, cleanup, nil
		}
		d, err := bridge.Dial(ctx, cfg.Bridge, signer, tx, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		closers = append(closers, d.Close)
		cd.Bridge = d
	}
	return cd, cleanup, nil
}
