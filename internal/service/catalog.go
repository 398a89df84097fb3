package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/engine"
	"github.com/neonslash/neonvault/internal/state"
)

// CatalogPage is one rendered catalog selection.
type CatalogPage struct {
	Mode      string       `json:"mode"`
	Category  string       `json:"category"`
	Page      int          `json:"page"`
	PageCount int          `json:"page_count"`
	Total     int          `json:"total"`
	Markets   []MarketJSON `json:"markets"`
	Bets      []BetJSON    `json:"bets,omitempty"`
}

// Catalog answers read queries for dashboards. Market lists are served from
// an in-process memo, then the shared cache, then the chain, and finally the
// database when the chain is unreachable.
type Catalog struct {
	reader   domain.VaultReader
	cache    domain.MarketCache
	store    domain.MarketStore
	sessions *state.Registry
	pageSize int
	memoTTL  time.Duration
	clock    func() time.Time
	logger   *slog.Logger

	mu      sync.RWMutex
	memo    []domain.Market
	memoAt  time.Time
	hasMemo bool
}

// NewCatalog creates a Catalog. cache and store may be nil.
func NewCatalog(
	reader domain.VaultReader,
	cache domain.MarketCache,
	store domain.MarketStore,
	sessions *state.Registry,
	pageSize int,
	logger *slog.Logger,
) *Catalog {
	if pageSize <= 0 {
		pageSize = engine.DefaultPageSize
	}
	return &Catalog{
		reader:   reader,
		cache:    cache,
		store:    store,
		sessions: sessions,
		pageSize: pageSize,
		memoTTL:  5 * time.Second,
		clock:    time.Now,
		logger:   logger.With(slog.String("component", "catalog")),
	}
}

// SetClock replaces the time source.
func (c *Catalog) SetClock(clock func() time.Time) { c.clock = clock }

// Now returns the catalog clock.
func (c *Catalog) Now() time.Time { return c.clock() }

// Remember replaces the memo with a fresh market list, e.g. from the indexer.
func (c *Catalog) Remember(markets []domain.Market) {
	c.mu.Lock()
	c.memo, c.memoAt, c.hasMemo = markets, c.clock(), true
	c.mu.Unlock()
}

// Markets returns the current market list.
func (c *Catalog) Markets(ctx context.Context) ([]domain.Market, error) {
	c.mu.RLock()
	if c.hasMemo && c.clock().Sub(c.memoAt) < c.memoTTL {
		out := c.memo
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	// Double-check after acquiring the write lock.
	if c.hasMemo && c.clock().Sub(c.memoAt) < c.memoTTL {
		return c.memo, nil
	}

	markets, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.memo, c.memoAt, c.hasMemo = markets, c.clock(), true
	return markets, nil
}

func (c *Catalog) load(ctx context.Context) ([]domain.Market, error) {
	if c.cache != nil {
		if markets, err := c.cache.GetAll(ctx); err == nil {
			return markets, nil
		}
	}
	markets, err := c.reader.AllMarkets(ctx)
	if err == nil {
		if c.cache != nil {
			if cerr := c.cache.SetAll(ctx, markets); cerr != nil {
				c.logger.WarnContext(ctx, "catalog cache set failed", slog.String("error", cerr.Error()))
			}
		}
		return markets, nil
	}
	if c.store == nil {
		return nil, fmt.Errorf("service: catalog: %w", err)
	}
	c.logger.WarnContext(ctx, "chain read failed, serving stored markets", slog.String("error", err.Error()))
	stored, serr := c.store.List(ctx)
	if serr != nil {
		return nil, fmt.Errorf("service: catalog: chain: %w; store: %w", err, serr)
	}
	return stored, nil
}

// Browse renders category and page for user. An empty user browses without
// bets, which leaves History empty.
func (c *Catalog) Browse(ctx context.Context, user, category string, page int) (CatalogPage, error) {
	markets, err := c.Markets(ctx)
	if err != nil {
		return CatalogPage{}, err
	}
	var bets map[uint64]domain.Bet
	if user != "" {
		s := c.sessions.Get(user)
		s.ApplyMarkets(markets, c.clock())
		if err := s.RefreshBets(ctx); err != nil {
			c.logger.WarnContext(ctx, "bet refresh failed", slog.String("user", user), slog.String("error", err.Error()))
		}
		bets = s.BetMap()
	}

	b := engine.NewBrowser(c.pageSize)
	b.SetCategory(category)
	b.SetPage(page)
	view := b.View(markets, bets)

	out := CatalogPage{
		Mode:      string(view.Mode),
		Category:  view.Category,
		Page:      view.Page.Page,
		PageCount: view.PageCount,
		Total:     view.Total,
		Markets:   MarketsJSON(view.Items, c.clock()),
	}
	if bets != nil {
		for _, m := range view.Items {
			if bet, ok := bets[m.ID]; ok && bet.Placed() {
				out.Bets = append(out.Bets, betJSON(m, bet))
			}
		}
	}
	return out, nil
}

// Market returns one projected market.
func (c *Catalog) Market(ctx context.Context, id uint64) (MarketJSON, error) {
	markets, err := c.Markets(ctx)
	if err != nil {
		return MarketJSON{}, err
	}
	for _, m := range markets {
		if m.ID == id {
			return MarketViewJSON(engine.ProjectMarket(m, c.clock())), nil
		}
	}
	return MarketJSON{}, fmt.Errorf("service: market %d: %w", id, domain.ErrNotFound)
}

// Stats summarises the market list.
func (c *Catalog) Stats(ctx context.Context) (engine.MarketStats, error) {
	markets, err := c.Markets(ctx)
	if err != nil {
		return engine.MarketStats{}, err
	}
	return engine.Stats(markets, c.clock()), nil
}

// Account returns user's derived account state, reading it on first use.
func (c *Catalog) Account(ctx context.Context, user string) (AccountJSON, error) {
	s := c.sessions.Get(user)
	if _, ok := s.Points.Get(); !ok {
		if err := s.Refresh(ctx); err != nil {
			return AccountJSON{}, fmt.Errorf("service: account %s: %w", user, err)
		}
	}
	return AccountView(s), nil
}

// Bets returns the user's placed bets with their claim states.
func (c *Catalog) Bets(ctx context.Context, user string) ([]BetJSON, error) {
	markets, err := c.Markets(ctx)
	if err != nil {
		return nil, err
	}
	s := c.sessions.Get(user)
	s.ApplyMarkets(markets, c.clock())
	if err := s.RefreshBets(ctx); err != nil {
		return nil, fmt.Errorf("service: bets %s: %w", user, err)
	}
	bets := s.BetMap()
	out := make([]BetJSON, 0, len(bets))
	for _, m := range markets {
		if b, ok := bets[m.ID]; ok && b.Placed() {
			out = append(out, betJSON(m, b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID > out[j].MarketID })
	return out, nil
}

func betJSON(m domain.Market, b domain.Bet) BetJSON {
	st := engine.ClassifyBet(m, b)
	return BetJSON{
		MarketID:   m.ID,
		Amount:     b.Amount,
		Prediction: b.Prediction,
		Claimed:    b.Claimed,
		State:      string(st),
		Label:      st.Label(),
	}
}

// AccountView renders a session's cached state.
func AccountView(s *state.Session) AccountJSON {
	acct := s.Account()
	lock := s.Lock()
	reward := s.Reward()
	decimals := s.Config().TokenDecimals
	isOwner, _ := s.IsOwner()

	out := AccountJSON{
		User:            acct.User,
		Points:          acct.Points,
		Staked:          engine.FormatTokenAmount(acct.Stake.StakedAmount, decimals),
		Locked:          lock.Locked,
		DaysLeft:        lock.DaysLeft,
		CanWithdraw:     lock.CanWithdraw,
		Allowance:       engine.FormatTokenAmount(acct.Allowance, decimals),
		EffectiveBond:   engine.FormatTokenAmount(acct.EffectiveBond, decimals),
		ProjectedBond:   s.BondValue(),
		PrincipalBond:   engine.FormatTokenAmount(acct.Agent.PrincipalBond, decimals),
		TotalSlashed:    engine.FormatTokenAmount(acct.Agent.TotalSlashed, decimals),
		TasksCompleted:  acct.Agent.TasksCompleted,
		RewardProgress:  reward.ProgressPct,
		RewardEligible:  reward.Eligible,
		RewardRemaining: reward.Remaining,
		DefaultBet:      engine.DefaultBetAmount(acct.Points),
		IsOwner:         isOwner,
		FetchedAt:       acct.FetchedAt.Unix(),
	}
	if !acct.Stake.StakeTimestamp.IsZero() {
		out.StakeTimestamp = acct.Stake.StakeTimestamp.Unix()
	}
	if !lock.LockEnd.IsZero() {
		out.LockEnd = lock.LockEnd.Unix()
	}
	return out
}
