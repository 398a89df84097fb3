// Package agent runs the vault owner's scheduled jobs: the prophet, which
// opens new markets from fixtures, news and crypto prices, and the resolver,
// which settles markets whose deadline has passed.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/notify"
	"github.com/neonslash/neonvault/internal/service"
)

const (
	CategoryFootball = "Football"
	CategoryStocks   = "Stocks"

	waveLockKey = "neonvault:agent:prophet"
)

// MarketCreator opens a market on the vault.
type MarketCreator interface {
	CreateMarket(ctx context.Context, description, category string, duration time.Duration) (service.ActionResult, error)
}

// Headliner supplies news headlines.
type Headliner interface {
	Headlines(ctx context.Context) ([]string, error)
}

// Fixture is a football match.
type Fixture struct {
	Home   string
	Away   string
	League string
}

// ProphetConfig tunes a wave.
type ProphetConfig struct {
	Fixtures       []Fixture
	MarketDuration time.Duration
	MaxNewsMarkets int
	// Pause is the gap between two deployments of one wave.
	Pause   time.Duration
	LockTTL time.Duration
	// CryptoSymbol is the asset of the price-target market.
	CryptoSymbol string
	// CryptoMarkup scales the spot price into the resistance target.
	CryptoMarkup float64
}

// Prophet deploys a wave of markets: one football fixture, a handful of
// news headlines and a price target for a crypto asset.
type Prophet struct {
	creator  MarketCreator
	news     Headliner
	prices   PriceSource
	lock     domain.LockManager
	notifier *notify.Notifier
	cfg      ProphetConfig
	pick     func(n int) int
	logger   *slog.Logger
}

// NewProphet creates a Prophet. news, lock and notifier may be nil.
func NewProphet(
	creator MarketCreator,
	news Headliner,
	lock domain.LockManager,
	notifier *notify.Notifier,
	cfg ProphetConfig,
	logger *slog.Logger,
) *Prophet {
	if cfg.MarketDuration <= 0 {
		cfg.MarketDuration = 7200 * time.Second
	}
	if cfg.MaxNewsMarkets <= 0 {
		cfg.MaxNewsMarkets = 2
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.CryptoSymbol == "" {
		cfg.CryptoSymbol = "BTC"
	}
	if cfg.CryptoMarkup <= 0 {
		cfg.CryptoMarkup = 1.015
	}
	return &Prophet{
		creator:  creator,
		news:     news,
		lock:     lock,
		notifier: notifier,
		cfg:      cfg,
		pick:     rand.IntN,
		logger:   logger.With(slog.String("component", "prophet")),
	}
}

// SetPriceSource enables the price-target market. Without a source a wave
// deploys fixtures and news only.
func (p *Prophet) SetPriceSource(src PriceSource) { p.prices = src }

// FixtureDescription renders the market question for a match.
func FixtureDescription(f Fixture) string {
	return fmt.Sprintf("Match Day: %s vs %s. Will %s win?", f.Home, f.Away, f.Home)
}

// NewsDescription renders the market question for a headline.
func NewsDescription(headline string) string {
	return fmt.Sprintf("News: '%s' - Will this asset surge +2%% next hour?", headline)
}

// CryptoTargetDescription renders the market question for a price target.
func CryptoTargetDescription(symbol string, target float64, window time.Duration) string {
	name := symbol
	if symbol == "BTC" {
		name = "Bitcoin (BTC)"
	}
	return fmt.Sprintf("Will %s break resistance at $%.2f in %s?", name, target, humanWindow(window))
}

func humanWindow(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	default:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
}

// Wave deploys one round of markets and returns the descriptions that were
// created. A wave already running elsewhere is skipped without error.
func (p *Prophet) Wave(ctx context.Context) ([]string, error) {
	if p.lock != nil {
		unlock, err := p.lock.Acquire(ctx, waveLockKey, p.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			p.logger.InfoContext(ctx, "wave skipped, another instance holds the lock")
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("agent: wave lock: %w", err)
		}
		defer unlock()
	}

	type plan struct{ description, category string }
	var plans []plan
	if len(p.cfg.Fixtures) > 0 {
		f := p.cfg.Fixtures[p.pick(len(p.cfg.Fixtures))]
		plans = append(plans, plan{FixtureDescription(f), CategoryFootball})
	}
	for _, h := range p.headlines(ctx) {
		plans = append(plans, plan{NewsDescription(h), CategoryStocks})
	}
	if target, ok := p.cryptoTarget(ctx); ok {
		plans = append(plans, plan{CryptoTargetDescription(p.cfg.CryptoSymbol, target, p.cfg.MarketDuration), CategoryStocks})
	}

	p.logger.InfoContext(ctx, "deploying wave", slog.Int("markets", len(plans)))
	var created []string
	var errs []error
	for i, pl := range plans {
		if i > 0 && p.cfg.Pause > 0 {
			select {
			case <-ctx.Done():
				return created, ctx.Err()
			case <-time.After(p.cfg.Pause):
			}
		}
		if _, err := p.creator.CreateMarket(ctx, pl.description, pl.category, p.cfg.MarketDuration); err != nil {
			p.logger.ErrorContext(ctx, "deploy failed",
				slog.String("description", pl.description),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		created = append(created, pl.description)
		p.logger.InfoContext(ctx, "market live", slog.String("description", pl.description))
		if err := p.notifier.Notify(ctx, notify.EventMarketCreated, "Market created", pl.description); err != nil {
			p.logger.WarnContext(ctx, "operator notify failed", slog.String("error", err.Error()))
		}
	}
	if len(created) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("agent: wave: %w", errors.Join(errs...))
	}
	return created, nil
}

// headlines samples up to MaxNewsMarkets distinct headlines, falling back to
// the built-in list when the feed fails.
func (p *Prophet) headlines(ctx context.Context) []string {
	if p.news == nil {
		return nil
	}
	list, err := p.news.Headlines(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "news feed failed, using fallback headlines", slog.String("error", err.Error()))
		list = FallbackHeadlines
	}
	pool := make([]string, 0, len(list))
	for _, h := range list {
		if strings.TrimSpace(h) != "" {
			pool = append(pool, h)
		}
	}
	n := min(p.cfg.MaxNewsMarkets, len(pool))
	out := make([]string, 0, n)
	for range n {
		i := p.pick(len(pool))
		out = append(out, pool[i])
		pool = append(pool[:i], pool[i+1:]...)
	}
	return out
}

// cryptoTarget returns the marked-up spot price of the configured asset. A
// missing source or a failed quote skips the market.
func (p *Prophet) cryptoTarget(ctx context.Context) (float64, bool) {
	if p.prices == nil {
		return 0, false
	}
	price, err := p.prices.Price(ctx, p.cfg.CryptoSymbol)
	if err != nil {
		p.logger.WarnContext(ctx, "price quote failed, skipping target market",
			slog.String("symbol", p.cfg.CryptoSymbol),
			slog.String("error", err.Error()),
		)
		return 0, false
	}
	return math.Round(price*p.cfg.CryptoMarkup*100) / 100, true
}
