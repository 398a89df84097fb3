package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/notify"
	"github.com/neonslash/neonvault/internal/state"
	"github.com/neonslash/neonvault/internal/vaulttest"
)

const (
	owner = "0x00000000000000000000000000000000000000f1"
	user  = "0xAbC0000000000000000000000000000000000001"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (m *memAudit) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *memAudit) has(event string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e == event {
			return true
		}
	}
	return false
}

type fixture struct {
	vault    *vaulttest.Vault
	sessions *state.Registry
	inbox    *notify.Inbox
	audit    *memAudit
	actions  *Actions
}

func newFixture(t *testing.T, sender string) *fixture {
	t.Helper()
	v := vaulttest.New(owner, sender)
	clock := func() time.Time { return t0 }
	v.Now = clock
	sessions := state.NewRegistry(v, v, state.SessionConfig{Spender: v.Spender, Clock: clock}, discardLogger())
	t.Cleanup(sessions.Close)
	inbox := notify.NewInbox(time.Minute, nil, discardLogger())
	inbox.SetClock(clock)
	audit := &memAudit{}
	return &fixture{
		vault:    v,
		sessions: sessions,
		inbox:    inbox,
		audit:    audit,
		actions: NewActions(v, v, sessions, inbox, audit, nil, ActionsConfig{
			Spender:      v.Spender,
			RefetchDelay: time.Millisecond,
		}, discardLogger()),
	}
}

func (f *fixture) lastMessage(t *testing.T) domain.Notification {
	t.Helper()
	list := f.inbox.List(user)
	require.NotEmpty(t, list)
	return list[0]
}

func key(addr string) string { return strings.ToLower(addr) }

func TestActions_NoSigner(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.actions.ClaimYield(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoSigner)
	assert.Empty(t, f.vault.Calls())
}

func TestStake_ApprovesThenStakes(t *testing.T) {
	f := newFixture(t, user)
	res, err := f.actions.Stake(context.Background(), "2.5")
	require.NoError(t, err)

	calls := f.vault.Calls()
	approveAt, stakeAt := indexOf(calls, "approve"), indexOf(calls, "stake")
	require.GreaterOrEqual(t, approveAt, 0)
	assert.Greater(t, stakeAt, approveAt)

	assert.Equal(t, ActionStake, res.Action)
	assert.NotEmpty(t, res.TxHash)
	assert.Equal(t, int64(2_500_000), f.vault.Staked[key(user)].Int64())
	assert.Equal(t, "Staked 2.5 USDC", res.Notification.Message)
	assert.True(t, f.audit.has("action_approve"))
	assert.True(t, f.audit.has("action_stake"))

	s := f.sessions.Get(user)
	require.Eventually(t, func() bool {
		return s.Stake.Value().HasStake()
	}, time.Second, 5*time.Millisecond)
}

func TestStake_SkipsApprovalWhenAllowanceCovers(t *testing.T) {
	f := newFixture(t, user)
	f.vault.Allowances[key(user)] = big.NewInt(10_000_000)

	_, err := f.actions.Stake(context.Background(), "1")
	require.NoError(t, err)
	assert.False(t, f.vault.Called("approve"))
}

func TestStake_ApprovalSucceedsStakeFails(t *testing.T) {
	f := newFixture(t, user)
	f.vault.WaitErrors["stake"] = errors.New("User rejected the request.")

	_, err := f.actions.Stake(context.Background(), "3")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExternal)
	assert.False(t, domain.IsLocalRejection(err))

	s := f.sessions.Get(user)
	assert.Equal(t, int64(3_000_000), s.Allowance.Value().Int64(), "approval is reflected")
	_, staked := s.Stake.Get()
	assert.False(t, staked, "stake snapshot untouched")

	msg := f.lastMessage(t)
	assert.Equal(t, domain.NotifyError, msg.Kind)
	assert.Equal(t, "User rejected the request.", msg.Message)
}

func TestStake_RejectsBadAmount(t *testing.T) {
	f := newFixture(t, user)
	for _, amt := range []string{"", "abc", "0", "-1", "1.0000001"} {
		_, err := f.actions.Stake(context.Background(), amt)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "amount %q", amt)
	}
	assert.Empty(t, f.vault.Calls())
	assert.Equal(t, "Enter a valid amount", f.lastMessage(t).Message)
}

func TestWithdraw_LockedStakeIsRejected(t *testing.T) {
	f := newFixture(t, user)
	f.vault.Staked[key(user)] = big.NewInt(5_000_000)
	f.vault.StakeTS[key(user)] = t0.Add(-24 * time.Hour).Unix()

	_, err := f.actions.Withdraw(context.Background(), "1")
	assert.ErrorIs(t, err, domain.ErrPrecondition)
	assert.False(t, f.vault.Called("withdraw"))
	assert.Equal(t, "Locked for 29 more day(s)", f.lastMessage(t).Message)
}

func TestWithdraw_AfterLock(t *testing.T) {
	f := newFixture(t, user)
	f.vault.Staked[key(user)] = big.NewInt(5_000_000)
	f.vault.StakeTS[key(user)] = t0.Add(-31 * 24 * time.Hour).Unix()

	_, err := f.actions.Withdraw(context.Background(), "6")
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "more than staked")

	_, err = f.actions.Withdraw(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.vault.Staked[key(user)].Int64())
}

func TestClaimYield_RequiresStake(t *testing.T) {
	f := newFixture(t, user)
	_, err := f.actions.ClaimYield(context.Background())
	assert.ErrorIs(t, err, domain.ErrPrecondition)
	assert.False(t, f.vault.Called("claimYield"))

	f2 := newFixture(t, user)
	f2.vault.Staked[key(user)] = big.NewInt(1)
	_, err = f2.actions.ClaimYield(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), f2.vault.PointsBal[key(user)])
}

func TestPlaceBet_LowBalance(t *testing.T) {
	f := newFixture(t, user)
	m := f.vault.AddMarket(domain.Market{Description: "A?", Category: "Stocks", Deadline: t0.Add(time.Hour)})
	f.vault.PointsBal[key(user)] = 10

	_, err := f.actions.PlaceBet(context.Background(), m.ID, true, "20")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.False(t, f.vault.Called("placeBet"))
	assert.Equal(t, "Low points balance!", f.lastMessage(t).Message)
}

func TestPlaceBet_DefaultAmountAndRefetch(t *testing.T) {
	f := newFixture(t, user)
	m := f.vault.AddMarket(domain.Market{Description: "A?", Category: "Stocks", Deadline: t0.Add(time.Hour)})
	f.vault.PointsBal[key(user)] = 80

	res, err := f.actions.PlaceBet(context.Background(), m.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, "Bet 50 points on YES", res.Notification.Message)
	assert.Equal(t, uint64(30), f.vault.PointsBal[key(user)])

	s := f.sessions.Get(user)
	require.Eventually(t, func() bool {
		return s.Points.Value() == 30 && s.Bet(m.ID).Amount == 50
	}, time.Second, 5*time.Millisecond)
}

func TestPlaceBet_ExpiredMarket(t *testing.T) {
	f := newFixture(t, user)
	m := f.vault.AddMarket(domain.Market{Description: "A?", Category: "Gold", Deadline: t0.Add(-time.Minute)})
	f.vault.PointsBal[key(user)] = 100

	_, err := f.actions.PlaceBet(context.Background(), m.ID, false, "5")
	assert.ErrorIs(t, err, domain.ErrPrecondition)
	assert.False(t, f.vault.Called("placeBet"))

	_, err = f.actions.PlaceBet(context.Background(), 99, false, "5")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestClaimWinnings(t *testing.T) {
	f := newFixture(t, user)
	won := f.vault.AddMarket(domain.Market{Description: "W", Category: "Stocks", Deadline: t0.Add(-time.Hour), Resolved: true, Result: true})
	lost := f.vault.AddMarket(domain.Market{Description: "L", Category: "Stocks", Deadline: t0.Add(-time.Hour), Resolved: true, Result: false})
	f.vault.SetBet(domain.Bet{MarketID: won.ID, User: user, Amount: 10, Prediction: true})
	f.vault.SetBet(domain.Bet{MarketID: lost.ID, User: user, Amount: 10, Prediction: true})

	_, err := f.actions.ClaimWinnings(context.Background(), lost.ID)
	assert.ErrorIs(t, err, domain.ErrPrecondition)
	assert.Equal(t, "Better luck next time", f.lastMessage(t).Message)

	res, err := f.actions.ClaimWinnings(context.Background(), won.ID)
	require.NoError(t, err)
	assert.Equal(t, "Points Claimed", res.Notification.Message)
	assert.Equal(t, uint64(20), f.vault.PointsBal[key(user)])
}

func TestCreateMarket_OwnerOnly(t *testing.T) {
	f := newFixture(t, user)
	_, err := f.actions.CreateMarket(context.Background(), "Will it rain?", "Stocks", time.Hour)
	assert.ErrorIs(t, err, domain.ErrPermission)
	assert.False(t, f.vault.Called("createMarket"))
	assert.Equal(t, "Only the vault owner can do this", f.lastMessage(t).Message)
}

func TestCreateMarket_ValidatesAndCreates(t *testing.T) {
	f := newFixture(t, owner)

	_, err := f.actions.CreateMarket(context.Background(), " ", "All", 0)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "description is required")
	assert.Contains(t, err.Error(), "category \"All\"")
	assert.Contains(t, err.Error(), "duration")

	_, err = f.actions.CreateMarket(context.Background(), "Will gold close higher?", "Gold", 2*time.Hour)
	require.NoError(t, err)
	require.Len(t, f.vault.Markets, 1)
	assert.Equal(t, t0.Add(2*time.Hour), f.vault.Markets[0].Deadline)
}

func TestResolveMarket(t *testing.T) {
	f := newFixture(t, owner)
	open := f.vault.AddMarket(domain.Market{Description: "A", Category: "Stocks", Deadline: t0.Add(-time.Hour)})
	done := f.vault.AddMarket(domain.Market{Description: "B", Category: "Stocks", Deadline: t0.Add(-time.Hour), Resolved: true})

	_, err := f.actions.ResolveMarket(context.Background(), done.ID, true)
	assert.ErrorIs(t, err, domain.ErrPrecondition)

	res, err := f.actions.ResolveMarket(context.Background(), open.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "Market #1 resolved YES", res.Notification.Message)
	assert.True(t, f.vault.Markets[0].Resolved)
}

func TestRedeemNFT(t *testing.T) {
	f := newFixture(t, user)
	f.vault.PointsBal[key(user)] = 400

	_, err := f.actions.RedeemNFT(context.Background())
	assert.ErrorIs(t, err, domain.ErrPrecondition)
	assert.Equal(t, "Earn 600 more points to redeem", f.lastMessage(t).Message)

	f2 := newFixture(t, user)
	f2.vault.PointsBal[key(user)] = 1200
	_, err = f2.actions.RedeemNFT(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(200), f2.vault.PointsBal[key(user)])
}

func TestRun_SubmitErrorIsExternal(t *testing.T) {
	f := newFixture(t, user)
	f.vault.Staked[key(user)] = big.NewInt(1)
	f.vault.Errors["claimYield"] = errors.New("network down")

	_, err := f.actions.ClaimYield(context.Background())
	assert.ErrorIs(t, err, domain.ErrExternal)
	assert.Equal(t, "network down", f.lastMessage(t).Message)
	assert.True(t, f.audit.has("action_claim_yield"))
}

func TestRun_ShortMessageIsInnermostReason(t *testing.T) {
	f := newFixture(t, user)
	f.vault.Staked[key(user)] = big.NewInt(1)
	f.vault.Errors["claimYield"] = fmt.Errorf("chain: claimYield: estimate gas: %w: %w",
		domain.ErrExternal, errors.New("execution reverted: Already claimed today\nrevert data: 0x08c379a0"))

	_, err := f.actions.ClaimYield(context.Background())
	assert.ErrorIs(t, err, domain.ErrExternal)
	assert.Equal(t, "execution reverted: Already claimed today", f.lastMessage(t).Message)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
