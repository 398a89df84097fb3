package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/engine"
)

// SessionConfig carries the fixed parameters of the derivations.
type SessionConfig struct {
	LockPeriod      time.Duration
	BondRate        float64
	Tick            time.Duration
	RewardThreshold uint64
	TokenDecimals   int
	// Spender is the vault address whose token allowance is tracked.
	Spender string
	Clock   func() time.Time
}

func (c *SessionConfig) setDefaults() {
	if c.LockPeriod <= 0 {
		c.LockPeriod = engine.DefaultLockPeriod
	}
	if c.BondRate == 0 {
		c.BondRate = engine.DefaultBondRate
	}
	if c.Tick <= 0 {
		c.Tick = engine.DefaultTick
	}
	if c.RewardThreshold == 0 {
		c.RewardThreshold = engine.RedemptionThreshold
	}
	if c.TokenDecimals == 0 {
		c.TokenDecimals = engine.TokenDecimals
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// RefreshFunc re-reads one or more entities of a session.
type RefreshFunc func(ctx context.Context) error

// Session is one user's cached view of the vault.
type Session struct {
	user   string
	reader domain.VaultReader
	token  domain.TokenClient
	cfg    SessionConfig
	logger *slog.Logger

	Points    Cache[uint64]
	Markets   Cache[[]domain.Market]
	Bets      Keyed[uint64, domain.Bet]
	Stake     Cache[domain.StakeRecord]
	Agent     Cache[domain.AgentRecord]
	Bond      Cache[*big.Int]
	Allowance Cache[*big.Int]
	Owner     Cache[string]

	projector *engine.Projector
	tickerMu  sync.Mutex
	ticker    *engine.Ticker

	// mu guards the lifecycle and usage fields below.
	mu        sync.Mutex
	isClosed  bool
	lastUsed  time.Time
	followers int
	closed    chan struct{}
	pending   sync.WaitGroup
}

// NewSession creates an empty session for user. token may be nil when
// allowance tracking is not needed.
func NewSession(user string, reader domain.VaultReader, token domain.TokenClient, cfg SessionConfig, logger *slog.Logger) *Session {
	cfg.setDefaults()
	s := &Session{
		user:      user,
		reader:    reader,
		token:     token,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "session"), slog.String("user", user)),
		projector: engine.NewProjector(cfg.BondRate, cfg.Tick),
		closed:    make(chan struct{}),
	}
	s.lastUsed = cfg.Clock()
	return s
}

// User returns the session's account address.
func (s *Session) User() string { return s.user }

// Config returns the session parameters.
func (s *Session) Config() SessionConfig { return s.cfg }

// Now returns the session clock.
func (s *Session) Now() time.Time { return s.cfg.Clock() }

// Refresh re-reads every entity concurrently. Entities whose read fails keep
// their previous snapshot; the first failure is returned.
func (s *Session) Refresh(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return s.RefreshPoints(ctx) })
	g.Go(func() error { return s.RefreshStake(ctx) })
	g.Go(func() error { return s.RefreshBond(ctx) })
	g.Go(func() error { return s.RefreshAgent(ctx) })
	g.Go(func() error { return s.RefreshOwner(ctx) })
	if s.token != nil {
		g.Go(func() error { return s.RefreshAllowance(ctx) })
	}
	g.Go(func() error {
		if err := s.RefreshMarkets(ctx); err != nil {
			return err
		}
		return s.RefreshBets(ctx)
	})
	return g.Wait()
}

func (s *Session) RefreshPoints(ctx context.Context) error {
	_, err := Fetch(ctx, &s.Points, s.cfg.Clock, func(ctx context.Context) (uint64, error) {
		return s.reader.Points(ctx, s.user)
	})
	return wrap("points", err)
}

func (s *Session) RefreshMarkets(ctx context.Context) error {
	_, err := Fetch(ctx, &s.Markets, s.cfg.Clock, s.reader.AllMarkets)
	return wrap("markets", err)
}

// ApplyMarkets stores a market list read elsewhere, e.g. by the indexer.
func (s *Session) ApplyMarkets(markets []domain.Market, at time.Time) {
	s.Markets.Apply(s.Markets.Begin(), markets, at)
}

// RefreshBets re-reads the user's bet in every cached market.
func (s *Session) RefreshBets(ctx context.Context) error {
	var errs []error
	for _, m := range s.Markets.Value() {
		if err := s.RefreshBet(ctx, m.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) RefreshBet(ctx context.Context, marketID uint64) error {
	_, err := Fetch(ctx, s.Bets.At(marketID), s.cfg.Clock, func(ctx context.Context) (domain.Bet, error) {
		return s.reader.UserBet(ctx, marketID, s.user)
	})
	return wrap(fmt.Sprintf("bet %d", marketID), err)
}

func (s *Session) RefreshStake(ctx context.Context) error {
	_, err := Fetch(ctx, &s.Stake, s.cfg.Clock, func(ctx context.Context) (domain.StakeRecord, error) {
		amount, err := s.reader.StakedAmount(ctx, s.user)
		if err != nil {
			return domain.StakeRecord{}, err
		}
		ts, err := s.reader.StakeTimestamp(ctx, s.user)
		if err != nil {
			return domain.StakeRecord{}, err
		}
		rec := domain.StakeRecord{User: s.user, StakedAmount: amount}
		if ts > 0 {
			rec.StakeTimestamp = time.Unix(ts, 0).UTC()
		}
		return rec, nil
	})
	return wrap("stake", err)
}

// RefreshBond reads the effective bond and, when the read is the newest,
// resets the projection to it.
func (s *Session) RefreshBond(ctx context.Context) error {
	seq := s.Bond.Begin()
	v, err := s.reader.EffectiveBond(ctx, s.user)
	if err != nil {
		return wrap("effective bond", err)
	}
	s.applyBond(seq, v, s.cfg.Clock())
	return nil
}

// ApplyBond stores a bond snapshot read elsewhere.
func (s *Session) ApplyBond(v *big.Int, at time.Time) {
	s.applyBond(s.Bond.Begin(), v, at)
}

func (s *Session) applyBond(seq uint64, v *big.Int, at time.Time) {
	if s.Bond.Apply(seq, v, at) {
		s.projector.Reset(engine.TokenToFloat(v, s.cfg.TokenDecimals), at)
	}
}

func (s *Session) RefreshAgent(ctx context.Context) error {
	_, err := Fetch(ctx, &s.Agent, s.cfg.Clock, func(ctx context.Context) (domain.AgentRecord, error) {
		return s.reader.AgentRecord(ctx, s.user)
	})
	return wrap("agent record", err)
}

func (s *Session) RefreshAllowance(ctx context.Context) error {
	if s.token == nil {
		return nil
	}
	_, err := Fetch(ctx, &s.Allowance, s.cfg.Clock, func(ctx context.Context) (*big.Int, error) {
		return s.token.Allowance(ctx, s.user, s.cfg.Spender)
	})
	return wrap("allowance", err)
}

func (s *Session) RefreshOwner(ctx context.Context) error {
	_, err := Fetch(ctx, &s.Owner, s.cfg.Clock, s.reader.Owner)
	return wrap("owner", err)
}

// RefreshAfter waits delay and then runs each fn once, without retrying.
// The returned channel receives the joined error and is closed. Closing the
// session or cancelling ctx abandons a refresh that has not started yet.
func (s *Session) RefreshAfter(ctx context.Context, delay time.Duration, fns ...RefreshFunc) <-chan error {
	out := make(chan error, 1)
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		close(out)
		return out
	}
	s.pending.Add(1)
	s.lastUsed = s.cfg.Clock()
	s.mu.Unlock()
	go func() {
		defer s.pending.Done()
		defer close(out)
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			out <- ctx.Err()
			return
		case <-s.closed:
			return
		case <-timer.C:
		}
		var errs []error
		for _, fn := range fns {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		err := errors.Join(errs...)
		if err != nil {
			s.logger.WarnContext(ctx, "delayed refresh failed", slog.String("error", err.Error()))
		}
		out <- err
	}()
	return out
}

// StartTicker starts the bond projection ticker, publishing each projected
// value to onTick. It reports false when no bond snapshot exists yet or the
// ticker already runs.
func (s *Session) StartTicker(ctx context.Context, onTick func(float64)) bool {
	s.tickerMu.Lock()
	defer s.tickerMu.Unlock()
	if s.ticker != nil && s.ticker.Running() {
		return false
	}
	s.ticker = engine.NewTicker(s.projector, onTick)
	return s.ticker.Start(ctx)
}

// StopTicker releases the projection ticker.
func (s *Session) StopTicker() {
	s.tickerMu.Lock()
	t := s.ticker
	s.tickerMu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// TickerRunning reports whether the projection ticker is active.
func (s *Session) TickerRunning() bool {
	s.tickerMu.Lock()
	defer s.tickerMu.Unlock()
	return s.ticker != nil && s.ticker.Running()
}

// Close stops the ticker and abandons pending delayed refreshes. Calling it
// again does nothing.
func (s *Session) Close() {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return
	}
	s.isClosed = true
	close(s.closed)
	s.mu.Unlock()

	s.StopTicker()
	s.pending.Wait()
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastUsed = s.cfg.Clock()
	s.mu.Unlock()
}

// Followed reports whether at least one live consumer follows the session.
func (s *Session) Followed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.followers > 0
}

// follow adds a follower and returns a release func that removes it once.
// Releasing the last follower stops the projection ticker.
func (s *Session) follow() func() {
	s.mu.Lock()
	s.followers++
	s.lastUsed = s.cfg.Clock()
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.followers--
			last := s.followers == 0
			s.lastUsed = s.cfg.Clock()
			s.mu.Unlock()
			if last {
				s.StopTicker()
			}
		})
	}
}

// idleSince reports whether the session has no followers and has not been
// used since cutoff.
func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.followers == 0 && s.lastUsed.Before(cutoff)
}

// ---------------------------------------------------------------------------
// Selectors
// ---------------------------------------------------------------------------

// BetMap returns the user's present bets keyed by market ID.
func (s *Session) BetMap() map[uint64]domain.Bet {
	return s.Bets.Values()
}

// Market returns the cached market with id.
func (s *Session) Market(id uint64) (domain.Market, error) {
	for _, m := range s.Markets.Value() {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.Market{}, fmt.Errorf("state: market %d: %w", id, domain.ErrNotFound)
}

// Bet returns the cached bet in market id; a missing record is a zero bet.
func (s *Session) Bet(id uint64) domain.Bet {
	b := s.Bets.At(id).Value()
	b.MarketID = id
	return b
}

// MarketViews projects every cached market at the session clock.
func (s *Session) MarketViews() []engine.MarketView {
	return engine.ProjectMarkets(s.Markets.Value(), s.Now())
}

// BetState classifies the user's bet in market id.
func (s *Session) BetState(id uint64) (engine.BetState, error) {
	m, err := s.Market(id)
	if err != nil {
		return engine.BetNone, err
	}
	return engine.ClassifyBet(m, s.Bet(id)), nil
}

// Catalog renders the browser's selection over the cached markets and bets.
func (s *Session) Catalog(b *engine.Browser) engine.CatalogView {
	return b.View(s.Markets.Value(), s.BetMap())
}

// Lock computes the withdrawal lock at the session clock.
func (s *Session) Lock() engine.LockView {
	return engine.ComputeLock(s.Stake.Value(), s.cfg.LockPeriod, s.Now())
}

// Reward evaluates the cached points balance.
func (s *Session) Reward() engine.RewardView {
	return engine.EvaluateReward(s.Points.Value(), s.cfg.RewardThreshold)
}

// BondValue is the current projected bond, 0 before the first bond read.
func (s *Session) BondValue() float64 {
	return s.projector.Value()
}

// IsOwner reports whether the session user is the vault owner. ok is false
// when the owner has not been read yet.
func (s *Session) IsOwner() (isOwner, ok bool) {
	snap, ok := s.Owner.Get()
	if !ok {
		return false, false
	}
	return strings.EqualFold(snap.Value, s.user), true
}

// Account returns the cached per-user reads as one snapshot.
func (s *Session) Account() domain.AccountSnapshot {
	return domain.AccountSnapshot{
		User:          s.user,
		Points:        s.Points.Value(),
		Stake:         s.Stake.Value(),
		Agent:         s.Agent.Value(),
		EffectiveBond: s.Bond.Value(),
		Allowance:     s.Allowance.Value(),
		FetchedAt:     s.Now(),
	}
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("state: refresh %s: %w: %w", what, domain.ErrExternal, err)
}
