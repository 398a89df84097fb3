package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/engine"
	"github.com/neonslash/neonvault/internal/notify"
	"github.com/neonslash/neonvault/internal/service"
)

const sweepLockKey = "neonvault:agent:resolver"

// MarketResolver settles a market on the vault.
type MarketResolver interface {
	ResolveMarket(ctx context.Context, marketID uint64, result bool) (service.ActionResult, error)
}

// Resolver force-resolves markets whose betting deadline has passed with a
// fixed outcome.
type Resolver struct {
	reader   domain.VaultReader
	resolver MarketResolver
	lock     domain.LockManager
	notifier *notify.Notifier
	outcome  bool
	pause    time.Duration
	clock    func() time.Time
	logger   *slog.Logger
}

// NewResolver creates a Resolver. lock and notifier may be nil.
func NewResolver(
	reader domain.VaultReader,
	resolver MarketResolver,
	lock domain.LockManager,
	notifier *notify.Notifier,
	outcome bool,
	pause time.Duration,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		reader:   reader,
		resolver: resolver,
		lock:     lock,
		notifier: notifier,
		outcome:  outcome,
		pause:    pause,
		clock:    time.Now,
		logger:   logger.With(slog.String("component", "resolver")),
	}
}

// SetClock replaces the time source.
func (r *Resolver) SetClock(clock func() time.Time) { r.clock = clock }

// Sweep resolves every market awaiting resolution and returns how many were
// settled. Individual failures are logged and skipped.
func (r *Resolver) Sweep(ctx context.Context) (int, error) {
	if r.lock != nil {
		unlock, err := r.lock.Acquire(ctx, sweepLockKey, 10*time.Minute)
		if errors.Is(err, domain.ErrLockHeld) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("agent: sweep lock: %w", err)
		}
		defer unlock()
	}

	markets, err := r.reader.AllMarkets(ctx)
	if err != nil {
		return 0, fmt.Errorf("agent: sweep: %w", err)
	}
	due := engine.AwaitingResolution(markets, r.clock())
	if len(due) == 0 {
		return 0, nil
	}
	r.logger.InfoContext(ctx, "resolving expired markets", slog.Int("count", len(due)))

	resolved := 0
	for i, m := range due {
		if i > 0 && r.pause > 0 {
			select {
			case <-ctx.Done():
				return resolved, ctx.Err()
			case <-time.After(r.pause):
			}
		}
		if _, err := r.resolver.ResolveMarket(ctx, m.ID, r.outcome); err != nil {
			r.logger.ErrorContext(ctx, "resolve failed",
				slog.Uint64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		resolved++
		if err := r.notifier.Notify(ctx, notify.EventMarketResolved, "Market resolved",
			fmt.Sprintf("#%d %s", m.ID, m.Description)); err != nil {
			r.logger.WarnContext(ctx, "operator notify failed", slog.String("error", err.Error()))
		}
	}
	return resolved, nil
}
