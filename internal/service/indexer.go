package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/engine"
	"github.com/neonslash/neonvault/internal/state"
)

// IndexerStores are the optional persistence targets of the indexer.
type IndexerStores struct {
	Markets  domain.MarketStore
	Bets     domain.BetStore
	Accounts domain.AccountStore
}

// Indexer polls the vault on an interval and fans each snapshot out to the
// sessions, the database, the shared cache and the signal bus.
type Indexer struct {
	reader   domain.VaultReader
	sessions *state.Registry
	catalog  *Catalog
	stores   IndexerStores
	cache    domain.MarketCache
	bus      domain.SignalBus
	watch    []string
	interval time.Duration
	logger   *slog.Logger
}

// NewIndexer creates an Indexer. Every collaborator except reader and
// sessions may be nil.
func NewIndexer(
	reader domain.VaultReader,
	sessions *state.Registry,
	catalog *Catalog,
	stores IndexerStores,
	cache domain.MarketCache,
	bus domain.SignalBus,
	watch []string,
	interval time.Duration,
	logger *slog.Logger,
) *Indexer {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Indexer{
		reader:   reader,
		sessions: sessions,
		catalog:  catalog,
		stores:   stores,
		cache:    cache,
		bus:      bus,
		watch:    watch,
		interval: interval,
		logger:   logger.With(slog.String("component", "indexer")),
	}
}

// Run indexes once immediately and then on every interval until ctx is
// cancelled.
func (ix *Indexer) Run(ctx context.Context) error {
	ix.logger.InfoContext(ctx, "indexer started",
		slog.Duration("interval", ix.interval),
		slog.Int("watched", len(ix.watch)),
	)
	if err := ix.Tick(ctx); err != nil {
		ix.logger.ErrorContext(ctx, "index failed", slog.String("error", err.Error()))
	}
	ticker := time.NewTicker(ix.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := ix.Tick(ctx); err != nil {
				ix.logger.ErrorContext(ctx, "index failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick performs one indexing pass.
func (ix *Indexer) Tick(ctx context.Context) error {
	markets, err := ix.reader.AllMarkets(ctx)
	if err != nil {
		return fmt.Errorf("service: indexer: read markets: %w", err)
	}
	now := time.Now().UTC()

	for _, s := range ix.sessions.All() {
		s.ApplyMarkets(markets, now)
	}
	if ix.catalog != nil {
		ix.catalog.Remember(markets)
	}
	if ix.stores.Markets != nil {
		if err := ix.stores.Markets.UpsertBatch(ctx, markets); err != nil {
			ix.logger.WarnContext(ctx, "market upsert failed", slog.String("error", err.Error()))
		}
	}
	if ix.cache != nil {
		if err := ix.cache.SetAll(ctx, markets); err != nil {
			ix.logger.WarnContext(ctx, "market cache set failed", slog.String("error", err.Error()))
		}
	}
	publishJSON(ctx, ix.bus, domain.ChannelMarketSnapshot, MarketSnapshotEvent{
		Markets: MarketsJSON(markets, now),
		Stats:   engine.Stats(markets, now),
		At:      now.Unix(),
	}, ix.logger)

	accounts := ix.accounts()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, user := range accounts {
		g.Go(func() error {
			if err := ix.indexAccount(gctx, user, markets, now); err != nil {
				ix.logger.WarnContext(gctx, "account index failed",
					slog.String("user", user),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	ix.logger.DebugContext(ctx, "indexed",
		slog.Int("markets", len(markets)),
		slog.Int("accounts", len(accounts)),
	)
	return nil
}

// accounts returns the configured watch list plus every followed session,
// without case-insensitive duplicates.
func (ix *Indexer) accounts() []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{ix.watch, ix.sessions.Followed()} {
		for _, u := range list {
			if k := strings.ToLower(u); !seen[k] {
				seen[k] = true
				out = append(out, u)
			}
		}
	}
	return out
}

func (ix *Indexer) indexAccount(ctx context.Context, user string, markets []domain.Market, now time.Time) error {
	s := ix.sessions.Get(user)
	s.ApplyMarkets(markets, now)

	var g errgroup.Group
	g.Go(func() error { return s.RefreshPoints(ctx) })
	g.Go(func() error { return s.RefreshStake(ctx) })
	g.Go(func() error { return s.RefreshBond(ctx) })
	g.Go(func() error { return s.RefreshAgent(ctx) })
	g.Go(func() error { return s.RefreshAllowance(ctx) })
	g.Go(func() error { return s.RefreshOwner(ctx) })
	g.Go(func() error { return s.RefreshBets(ctx) })
	if err := g.Wait(); err != nil {
		return err
	}

	snap := s.Account()
	if ix.stores.Accounts != nil {
		if err := ix.stores.Accounts.Upsert(ctx, snap); err != nil {
			return fmt.Errorf("service: indexer: upsert account: %w", err)
		}
	}

	bets := s.BetMap()
	var placed []domain.Bet
	var betsJSON []BetJSON
	for _, m := range markets {
		if b, ok := bets[m.ID]; ok && b.Placed() {
			b.MarketID, b.User = m.ID, user
			placed = append(placed, b)
			betsJSON = append(betsJSON, betJSON(m, b))
		}
	}
	if ix.stores.Bets != nil && len(placed) > 0 {
		if err := ix.stores.Bets.UpsertBatch(ctx, placed); err != nil {
			return fmt.Errorf("service: indexer: upsert bets: %w", err)
		}
	}

	publishJSON(ctx, ix.bus, domain.ChannelAccountSnapshot, AccountSnapshotEvent{
		Account: AccountView(s),
		Bets:    betsJSON,
	}, ix.logger)
	return nil
}
