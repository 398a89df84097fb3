package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/state"
)

// DefaultSessionIdle is how long an unfollowed session survives without reads.
const DefaultSessionIdle = 10 * time.Minute

// BondPublisher runs the bond projection ticker of every followed session and
// publishes each projected value on the signal bus. Sessions nobody follows
// get no ticker and are evicted once idle.
type BondPublisher struct {
	sessions *state.Registry
	bus      domain.SignalBus
	retry    time.Duration
	idle     time.Duration
	logger   *slog.Logger
}

// NewBondPublisher creates a BondPublisher. retry is how often followers are
// reconciled with running tickers; idle is the eviction age of unfollowed
// sessions.
func NewBondPublisher(sessions *state.Registry, bus domain.SignalBus, retry, idle time.Duration, logger *slog.Logger) *BondPublisher {
	if retry <= 0 {
		retry = 5 * time.Second
	}
	if idle <= 0 {
		idle = DefaultSessionIdle
	}
	return &BondPublisher{
		sessions: sessions,
		bus:      bus,
		retry:    retry,
		idle:     idle,
		logger:   logger.With(slog.String("component", "bond_publisher")),
	}
}

// Run reconciles tickers on every retry interval. Call in a goroutine; it
// stops every ticker when ctx is cancelled.
func (p *BondPublisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.retry)
	defer ticker.Stop()
	defer p.stopAll()

	p.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.reconcile(ctx)
		}
	}
}

// reconcile starts the ticker of each followed session with a bond snapshot,
// stops tickers nobody follows and evicts idle sessions.
func (p *BondPublisher) reconcile(ctx context.Context) {
	for _, s := range p.sessions.All() {
		if !s.Followed() {
			if s.TickerRunning() {
				s.StopTicker()
				p.logger.DebugContext(ctx, "bond ticker stopped", slog.String("user", s.User()))
			}
			continue
		}
		if s.TickerRunning() {
			continue
		}
		user := s.User()
		if _, ok := s.Bond.Get(); !ok {
			if err := s.RefreshBond(ctx); err != nil {
				p.logger.WarnContext(ctx, "bond read failed", slog.String("user", user), slog.String("error", err.Error()))
				continue
			}
		}
		if s.StartTicker(ctx, func(v float64) {
			publishJSON(ctx, p.bus, domain.ChannelBondTick, BondTickEvent{
				User:  user,
				Value: v,
				At:    time.Now().UTC().Unix(),
			}, p.logger)
		}) {
			p.logger.DebugContext(ctx, "bond ticker started", slog.String("user", user))
		}
	}
	p.sessions.Evict(p.idle)
}

func (p *BondPublisher) stopAll() {
	for _, s := range p.sessions.All() {
		s.StopTicker()
	}
}
