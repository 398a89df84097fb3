package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/engine"
	"github.com/neonslash/neonvault/internal/notify"
	"github.com/neonslash/neonvault/internal/state"
)

// Action names used in notifications and the audit log.
const (
	ActionApprove       = "approve"
	ActionStake         = "stake"
	ActionWithdraw      = "withdraw"
	ActionClaimYield    = "claim_yield"
	ActionPlaceBet      = "place_bet"
	ActionClaimWinnings = "claim_winnings"
	ActionCreateMarket  = "create_market"
	ActionResolveMarket = "resolve_market"
	ActionRedeemNFT     = "redeem_nft"
)

// ActionResult describes a confirmed action.
type ActionResult struct {
	Action       string
	TxHash       string
	Receipt      domain.Receipt
	Notification domain.Notification
}

// ActionsConfig tunes the action service.
type ActionsConfig struct {
	Spender       string // vault address the token approval targets
	TokenDecimals int
	RefetchDelay  time.Duration
}

// rejection is a locally detected failure with a user-facing message.
type rejection struct {
	short string
	err   error
}

func (r *rejection) Error() string        { return r.err.Error() }
func (r *rejection) Unwrap() error        { return r.err }
func (r *rejection) ShortMessage() string { return r.short }

func reject(short string, err error) error { return &rejection{short: short, err: err} }

// Actions runs the vault's state-changing operations for the signing wallet:
// validate against cached state, submit, wait for confirmation, notify, then
// schedule one delayed re-fetch of the affected snapshots.
type Actions struct {
	writer   domain.VaultWriter
	token    domain.TokenClient
	sessions *state.Registry
	inbox    *notify.Inbox
	audit    domain.AuditStore
	bus      domain.SignalBus
	cfg      ActionsConfig
	logger   *slog.Logger
}

// NewActions creates an Actions service. audit and bus may be nil.
func NewActions(
	writer domain.VaultWriter,
	token domain.TokenClient,
	sessions *state.Registry,
	inbox *notify.Inbox,
	audit domain.AuditStore,
	bus domain.SignalBus,
	cfg ActionsConfig,
	logger *slog.Logger,
) *Actions {
	if cfg.TokenDecimals <= 0 {
		cfg.TokenDecimals = engine.TokenDecimals
	}
	if cfg.RefetchDelay <= 0 {
		cfg.RefetchDelay = 2 * time.Second
	}
	return &Actions{
		writer:   writer,
		token:    token,
		sessions: sessions,
		inbox:    inbox,
		audit:    audit,
		bus:      bus,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "actions")),
	}
}

// Actor returns the signing address, or "" when no wallet is configured.
func (a *Actions) Actor() string { return a.writer.Sender() }

// Session returns the actor's session.
func (a *Actions) Session() (*state.Session, error) {
	actor := a.writer.Sender()
	if actor == "" {
		return nil, fmt.Errorf("service: %w", domain.ErrNoSigner)
	}
	return a.sessions.Get(actor), nil
}

// Stake deposits amount (a decimal token string), approving the vault first
// when the allowance does not cover it.
func (a *Actions) Stake(ctx context.Context, amountStr string) (ActionResult, error) {
	s, err := a.Session()
	if err != nil {
		return ActionResult{}, err
	}
	amount, err := engine.ParseTokenAmount(amountStr, a.cfg.TokenDecimals)
	if err != nil {
		return a.fail(ctx, s, ActionStake, reject("Enter a valid amount", err))
	}

	if err := s.RefreshAllowance(ctx); err != nil {
		return a.fail(ctx, s, ActionStake, err)
	}
	if s.Allowance.Value() == nil || s.Allowance.Value().Cmp(amount) < 0 {
		if _, err := a.approve(ctx, s, amount); err != nil {
			return ActionResult{}, err
		}
	}

	msg := fmt.Sprintf("Staked %s USDC", engine.FormatTokenAmount(amount, a.cfg.TokenDecimals))
	return a.run(ctx, s, ActionStake, msg,
		func(ctx context.Context) (domain.PendingTx, error) { return a.writer.Stake(ctx, amount) },
		s.RefreshStake, s.RefreshAllowance, s.RefreshBond, s.RefreshPoints,
	)
}

// approve raises the vault allowance to amount. The allowance snapshot is
// refreshed as soon as the approval confirms, whatever happens next.
func (a *Actions) approve(ctx context.Context, s *state.Session, amount *big.Int) (ActionResult, error) {
	ptx, err := a.token.Approve(ctx, a.cfg.Spender, amount)
	if err != nil {
		return a.fail(ctx, s, ActionApprove, external(ActionApprove, err))
	}
	receipt, err := ptx.Wait(ctx)
	if err != nil {
		return a.fail(ctx, s, ActionApprove, external(ActionApprove, err))
	}
	if err := s.RefreshAllowance(ctx); err != nil {
		a.logger.WarnContext(ctx, "allowance refresh after approval failed", slog.String("error", err.Error()))
	}
	n := a.inbox.Info(ctx, s.User(), ActionApprove, "Approval confirmed")
	a.record(ctx, ActionApprove, s.User(), map[string]any{"tx": receipt.TxHash, "amount": amount.String()})
	return ActionResult{Action: ActionApprove, TxHash: receipt.TxHash, Receipt: receipt, Notification: n}, nil
}

// Withdraw returns amount of the stake once the lock has elapsed.
func (a *Actions) Withdraw(ctx context.Context, amountStr string) (ActionResult, error) {
	s, err := a.Session()
	if err != nil {
		return ActionResult{}, err
	}
	amount, err := engine.ParseTokenAmount(amountStr, a.cfg.TokenDecimals)
	if err != nil {
		return a.fail(ctx, s, ActionWithdraw, reject("Enter a valid amount", err))
	}
	if err := ensure(ctx, absent(&s.Stake), s.RefreshStake); err != nil {
		return a.fail(ctx, s, ActionWithdraw, err)
	}
	lock := s.Lock()
	if err := engine.CheckWithdraw(lock, s.Stake.Value(), amount); err != nil {
		short := "Amount exceeds your stake"
		if !lock.CanWithdraw {
			short = fmt.Sprintf("Locked for %d more day(s)", lock.DaysLeft)
		}
		return a.fail(ctx, s, ActionWithdraw, reject(short, err))
	}

	msg := fmt.Sprintf("Withdrew %s USDC", engine.FormatTokenAmount(amount, a.cfg.TokenDecimals))
	return a.run(ctx, s, ActionWithdraw, msg,
		func(ctx context.Context) (domain.PendingTx, error) { return a.writer.Withdraw(ctx, amount) },
		s.RefreshStake, s.RefreshBond,
	)
}

// ClaimYield collects the daily points yield. It requires a non-zero stake.
func (a *Actions) ClaimYield(ctx context.Context) (ActionResult, error) {
	s, err := a.Session()
	if err != nil {
		return ActionResult{}, err
	}
	if err := ensure(ctx, absent(&s.Stake), s.RefreshStake); err != nil {
		return a.fail(ctx, s, ActionClaimYield, err)
	}
	if !s.Stake.Value().HasStake() {
		return a.fail(ctx, s, ActionClaimYield,
			reject("Stake USDC first to earn yield", fmt.Errorf("service: claim yield: nothing staked: %w", domain.ErrPrecondition)))
	}
	return a.run(ctx, s, ActionClaimYield, "Yield claimed",
		func(ctx context.Context) (domain.PendingTx, error) { return a.writer.ClaimYield(ctx) },
		s.RefreshPoints,
	)
}

// PlaceBet bets amountStr points on marketID. An empty amount uses the
// default bet for the current balance.
func (a *Actions) PlaceBet(ctx context.Context, marketID uint64, prediction bool, amountStr string) (ActionResult, error) {
	s, err := a.Session()
	if err != nil {
		return ActionResult{}, err
	}
	if err := ensure(ctx, absent(&s.Points) || absent(&s.Markets), s.RefreshPoints, s.RefreshMarkets); err != nil {
		return a.fail(ctx, s, ActionPlaceBet, err)
	}
	points := s.Points.Value()

	var amount uint64
	if strings.TrimSpace(amountStr) == "" {
		amount = engine.DefaultBetAmount(points)
	} else if amount, err = engine.ParsePoints(amountStr); err != nil {
		return a.fail(ctx, s, ActionPlaceBet, reject("Enter a whole number of points", err))
	}

	m, err := s.Market(marketID)
	if err != nil {
		return a.fail(ctx, s, ActionPlaceBet, reject("Unknown market", fmt.Errorf("service: place bet: %w: %w", domain.ErrInvalidInput, err)))
	}
	if err := engine.CheckBet(m, s.Now(), amount, points); err != nil {
		short := "Market is closed for betting"
		if amount > points {
			short = "Low points balance!"
		}
		return a.fail(ctx, s, ActionPlaceBet, reject(short, err))
	}

	side := "NO"
	if prediction {
		side = "YES"
	}
	return a.run(ctx, s, ActionPlaceBet, fmt.Sprintf("Bet %d points on %s", amount, side),
		func(ctx context.Context) (domain.PendingTx, error) {
			return a.writer.PlaceBet(ctx, marketID, prediction, amount)
		},
		s.RefreshPoints, s.RefreshMarkets, betRefresher(s, marketID),
	)
}

// ClaimWinnings pays out a winning, unclaimed bet.
func (a *Actions) ClaimWinnings(ctx context.Context, marketID uint64) (ActionResult, error) {
	s, err := a.Session()
	if err != nil {
		return ActionResult{}, err
	}
	if err := ensure(ctx, absent(&s.Markets), s.RefreshMarkets); err != nil {
		return a.fail(ctx, s, ActionClaimWinnings, err)
	}
	if err := ensure(ctx, absent(s.Bets.At(marketID)), betRefresher(s, marketID)); err != nil {
		return a.fail(ctx, s, ActionClaimWinnings, err)
	}
	m, err := s.Market(marketID)
	if err != nil {
		return a.fail(ctx, s, ActionClaimWinnings, reject("Unknown market", fmt.Errorf("service: claim: %w: %w", domain.ErrInvalidInput, err)))
	}
	bet := s.Bet(marketID)
	if err := engine.CheckClaim(m, bet); err != nil {
		return a.fail(ctx, s, ActionClaimWinnings, reject(engine.ClassifyBet(m, bet).Label(), err))
	}
	return a.run(ctx, s, ActionClaimWinnings, "Points Claimed",
		func(ctx context.Context) (domain.PendingTx, error) { return a.writer.ClaimWinnings(ctx, marketID) },
		s.RefreshPoints, betRefresher(s, marketID),
	)
}

// CreateMarket opens a market. Only the vault owner may call it.
func (a *Actions) CreateMarket(ctx context.Context, description, category string, duration time.Duration) (ActionResult, error) {
	s, err := a.Session()
	if err != nil {
		return ActionResult{}, err
	}
	if err := a.requireOwner(ctx, s, ActionCreateMarket); err != nil {
		return ActionResult{}, err
	}
	description, category = strings.TrimSpace(description), strings.TrimSpace(category)
	var problems []string
	if description == "" {
		problems = append(problems, "description is required")
	}
	if category == "" || category == engine.CategoryAll || category == engine.CategoryHistory {
		problems = append(problems, fmt.Sprintf("category %q is not a market category", category))
	}
	if duration < time.Second {
		problems = append(problems, "duration must be at least one second")
	}
	if len(problems) > 0 {
		err := fmt.Errorf("service: create market: %s: %w", strings.Join(problems, "; "), domain.ErrInvalidInput)
		return a.fail(ctx, s, ActionCreateMarket, reject(problems[0], err))
	}

	seconds := uint64(duration / time.Second)
	return a.run(ctx, s, ActionCreateMarket, "Market created: "+description,
		func(ctx context.Context) (domain.PendingTx, error) {
			return a.writer.CreateMarket(ctx, description, category, seconds)
		},
		s.RefreshMarkets,
	)
}

// ResolveMarket settles an unresolved market. Only the vault owner may call
// it.
func (a *Actions) ResolveMarket(ctx context.Context, marketID uint64, result bool) (ActionResult, error) {
	s, err := a.Session()
	if err != nil {
		return ActionResult{}, err
	}
	if err := a.requireOwner(ctx, s, ActionResolveMarket); err != nil {
		return ActionResult{}, err
	}
	if err := ensure(ctx, absent(&s.Markets), s.RefreshMarkets); err != nil {
		return a.fail(ctx, s, ActionResolveMarket, err)
	}
	m, err := s.Market(marketID)
	if err != nil {
		return a.fail(ctx, s, ActionResolveMarket, reject("Unknown market", fmt.Errorf("service: resolve: %w: %w", domain.ErrInvalidInput, err)))
	}
	if m.Resolved {
		return a.fail(ctx, s, ActionResolveMarket,
			reject("Market already resolved", fmt.Errorf("service: resolve market %d: already resolved: %w", marketID, domain.ErrPrecondition)))
	}
	outcome := "NO"
	if result {
		outcome = "YES"
	}
	return a.run(ctx, s, ActionResolveMarket, fmt.Sprintf("Market #%d resolved %s", marketID, outcome),
		func(ctx context.Context) (domain.PendingTx, error) { return a.writer.ResolveMarket(ctx, marketID, result) },
		s.RefreshMarkets,
	)
}

// RedeemNFT exchanges points for the reward NFT once the threshold is met.
func (a *Actions) RedeemNFT(ctx context.Context) (ActionResult, error) {
	s, err := a.Session()
	if err != nil {
		return ActionResult{}, err
	}
	if err := ensure(ctx, absent(&s.Points), s.RefreshPoints); err != nil {
		return a.fail(ctx, s, ActionRedeemNFT, err)
	}
	v := s.Reward()
	if err := engine.CheckRedeem(v); err != nil {
		return a.fail(ctx, s, ActionRedeemNFT, reject(fmt.Sprintf("Earn %d more points to redeem", v.Remaining), err))
	}
	return a.run(ctx, s, ActionRedeemNFT, "Reward redeemed",
		func(ctx context.Context) (domain.PendingTx, error) { return a.writer.RedeemNFT(ctx) },
		s.RefreshPoints,
	)
}

func (a *Actions) requireOwner(ctx context.Context, s *state.Session, action string) error {
	isOwner, ok := s.IsOwner()
	if !ok {
		if err := s.RefreshOwner(ctx); err != nil {
			_, err = a.fail(ctx, s, action, err)
			return err
		}
		isOwner, _ = s.IsOwner()
	}
	if !isOwner {
		_, err := a.fail(ctx, s, action, reject("Only the vault owner can do this",
			fmt.Errorf("service: %s by %s: %w", action, s.User(), domain.ErrPermission)))
		return err
	}
	return nil
}

// run submits, waits, notifies and schedules the follow-up refresh.
func (a *Actions) run(
	ctx context.Context,
	s *state.Session,
	action, success string,
	submit func(context.Context) (domain.PendingTx, error),
	refresh ...state.RefreshFunc,
) (ActionResult, error) {
	ptx, err := submit(ctx)
	if err != nil {
		return a.fail(ctx, s, action, external(action, err))
	}
	a.logger.InfoContext(ctx, "action submitted",
		slog.String("action", action),
		slog.String("user", s.User()),
		slog.String("tx", ptx.Hash()),
	)
	receipt, err := ptx.Wait(ctx)
	if err != nil {
		return a.fail(ctx, s, action, external(action, err))
	}

	n := a.inbox.Success(ctx, s.User(), action, success, receipt.TxHash)
	a.record(ctx, action, s.User(), map[string]any{
		"tx":     receipt.TxHash,
		"block":  receipt.BlockNumber,
		"status": "confirmed",
	})
	if len(refresh) > 0 {
		s.RefreshAfter(context.WithoutCancel(ctx), a.cfg.RefetchDelay, refresh...)
	}
	return ActionResult{Action: action, TxHash: receipt.TxHash, Receipt: receipt, Notification: n}, nil
}

// fail converts err into an error notification and an audit entry.
func (a *Actions) fail(ctx context.Context, s *state.Session, action string, err error) (ActionResult, error) {
	level := slog.LevelWarn
	if !domain.IsLocalRejection(err) {
		level = slog.LevelError
	}
	a.logger.Log(ctx, level, "action failed",
		slog.String("action", action),
		slog.String("user", s.User()),
		slog.String("error", err.Error()),
	)
	n := a.inbox.Error(ctx, s.User(), action, err)
	a.record(ctx, action, s.User(), map[string]any{
		"status": "failed",
		"local":  domain.IsLocalRejection(err),
		"error":  err.Error(),
	})
	return ActionResult{Action: action, Notification: n}, err
}

func (a *Actions) record(ctx context.Context, action, user string, detail map[string]any) {
	detail["user"] = user
	event := "action_" + action
	if a.audit != nil {
		if err := a.audit.Log(ctx, event, detail); err != nil {
			a.logger.WarnContext(ctx, "audit log failed", slog.String("event", event), slog.String("error", err.Error()))
		}
	}
	appendAudit(ctx, a.bus, event, detail, a.logger)
}

// ensure runs fns when stale is true.
func ensure(ctx context.Context, stale bool, fns ...state.RefreshFunc) error {
	if !stale {
		return nil
	}
	var errs []error
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func absent[T any](c *state.Cache[T]) bool {
	_, ok := c.Get()
	return !ok
}

func betRefresher(s *state.Session, marketID uint64) state.RefreshFunc {
	return func(ctx context.Context) error { return s.RefreshBet(ctx, marketID) }
}

// external tags a collaborator failure. Its short message is the one the
// collaborator supplies, else the first line of the innermost cause.
func external(action string, err error) error {
	short := domain.Cause(err).Error()
	if i := strings.IndexByte(short, '\n'); i >= 0 {
		short = short[:i]
	}
	short = strings.TrimSpace(short)
	var sm notify.ShortMessager
	if errors.As(err, &sm) && sm.ShortMessage() != "" {
		short = sm.ShortMessage()
	}
	if !errors.Is(err, domain.ErrExternal) {
		err = fmt.Errorf("%w: %w", domain.ErrExternal, err)
	}
	return reject(short, fmt.Errorf("service: %s: %w", action, err))
}
