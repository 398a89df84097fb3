// Package vaulttest provides an in-memory vault contract for tests. It
// implements the read, write and token surfaces of the domain package with
// simplified contract semantics and records every call it receives.
package vaulttest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/neonslash/neonvault/internal/domain"
)

// Vault is a fake vault plus its stable-asset token. Zero value is not
// usable; call New.
type Vault struct {
	mu sync.Mutex

	OwnerAddr  string
	SenderAddr string
	Spender    string
	Now        func() time.Time

	Markets    []domain.Market
	PointsBal  map[string]uint64
	BetRecords map[uint64]map[string]domain.Bet
	Staked     map[string]*big.Int
	StakeTS    map[string]int64
	Bonds      map[string]*big.Int
	Agents     map[string]domain.AgentRecord
	Allowances map[string]*big.Int
	Balances   map[string]*big.Int

	// Errors makes the named method fail when submitted or read.
	Errors map[string]error
	// WaitErrors makes the named write fail while waiting for its receipt.
	WaitErrors map[string]error

	calls []string
	nonce int
}

var (
	_ domain.VaultReader = (*Vault)(nil)
	_ domain.VaultWriter = (*Vault)(nil)
	_ domain.TokenClient = (*Vault)(nil)
)

// New returns an empty vault whose writes are sent from sender.
func New(owner, sender string) *Vault {
	return &Vault{
		OwnerAddr:  owner,
		SenderAddr: sender,
		Spender:    "0xvault",
		Now:        time.Now,
		PointsBal:  make(map[string]uint64),
		BetRecords: make(map[uint64]map[string]domain.Bet),
		Staked:     make(map[string]*big.Int),
		StakeTS:    make(map[string]int64),
		Bonds:      make(map[string]*big.Int),
		Agents:     make(map[string]domain.AgentRecord),
		Allowances: make(map[string]*big.Int),
		Balances:   make(map[string]*big.Int),
		Errors:     make(map[string]error),
		WaitErrors: make(map[string]error),
	}
}

// Calls returns the recorded method names in order.
func (v *Vault) Calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.calls...)
}

// Called reports whether method was invoked at least once.
func (v *Vault) Called(method string) bool {
	for _, c := range v.Calls() {
		if c == method {
			return true
		}
	}
	return false
}

// AddMarket appends a market and assigns its 1-based ID.
func (v *Vault) AddMarket(m domain.Market) domain.Market {
	v.mu.Lock()
	defer v.mu.Unlock()
	m.ID = uint64(len(v.Markets) + 1)
	m.Exists = true
	v.Markets = append(v.Markets, m)
	return m
}

// SetBet stores a bet record directly.
func (v *Vault) SetBet(b domain.Bet) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setBet(b)
}

func (v *Vault) setBet(b domain.Bet) {
	if v.BetRecords[b.MarketID] == nil {
		v.BetRecords[b.MarketID] = make(map[string]domain.Bet)
	}
	v.BetRecords[b.MarketID][key(b.User)] = b
}

func key(addr string) string { return strings.ToLower(addr) }

func (v *Vault) record(method string) error {
	v.calls = append(v.calls, method)
	return v.Errors[method]
}

func bigOrZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func (v *Vault) Points(_ context.Context, user string) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("getPoints"); err != nil {
		return 0, err
	}
	return v.PointsBal[key(user)], nil
}

func (v *Vault) AllMarkets(context.Context) ([]domain.Market, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("getAllMarkets"); err != nil {
		return nil, err
	}
	return append([]domain.Market(nil), v.Markets...), nil
}

func (v *Vault) MarketCount(context.Context) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("marketCount"); err != nil {
		return 0, err
	}
	return uint64(len(v.Markets)), nil
}

func (v *Vault) UserBet(_ context.Context, marketID uint64, user string) (domain.Bet, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("userBets"); err != nil {
		return domain.Bet{}, err
	}
	b := v.BetRecords[marketID][key(user)]
	b.MarketID = marketID
	b.User = user
	return b, nil
}

func (v *Vault) StakedAmount(_ context.Context, user string) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("stakedUSDC"); err != nil {
		return nil, err
	}
	return bigOrZero(v.Staked[key(user)]), nil
}

func (v *Vault) StakeTimestamp(_ context.Context, user string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("stakeTimestamp"); err != nil {
		return 0, err
	}
	return v.StakeTS[key(user)], nil
}

func (v *Vault) EffectiveBond(_ context.Context, user string) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("effectiveBond"); err != nil {
		return nil, err
	}
	return bigOrZero(v.Bonds[key(user)]), nil
}

func (v *Vault) AgentRecord(_ context.Context, user string) (domain.AgentRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("agentRecord"); err != nil {
		return domain.AgentRecord{}, err
	}
	rec := v.Agents[key(user)]
	rec.User = user
	return rec, nil
}

func (v *Vault) Owner(context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("owner"); err != nil {
		return "", err
	}
	return v.OwnerAddr, nil
}

func (v *Vault) Allowance(_ context.Context, owner, _ string) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("allowance"); err != nil {
		return nil, err
	}
	return bigOrZero(v.Allowances[key(owner)]), nil
}

func (v *Vault) BalanceOf(_ context.Context, owner string) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("balanceOf"); err != nil {
		return nil, err
	}
	return bigOrZero(v.Balances[key(owner)]), nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// Tx is the fake pending transaction.
type Tx struct {
	hash    string
	waitErr error
}

func (t *Tx) Hash() string { return t.hash }

func (t *Tx) Wait(ctx context.Context) (domain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.Receipt{}, err
	}
	r := domain.Receipt{TxHash: t.hash, BlockNumber: 1, Success: t.waitErr == nil}
	return r, t.waitErr
}

// submit records method and, unless it fails, applies effect and returns a
// pending tx. effect runs with v.mu held.
func (v *Vault) submit(method string, effect func() error) (domain.PendingTx, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record(method); err != nil {
		return nil, err
	}
	v.nonce++
	tx := &Tx{hash: fmt.Sprintf("0x%064x", v.nonce), waitErr: v.WaitErrors[method]}
	if tx.waitErr != nil {
		return tx, nil
	}
	if err := effect(); err != nil {
		tx.waitErr = fmt.Errorf("%w: %w", domain.ErrTxReverted, err)
	}
	return tx, nil
}

func (v *Vault) Sender() string { return v.SenderAddr }

func (v *Vault) Stake(_ context.Context, amount *big.Int) (domain.PendingTx, error) {
	return v.submit("stake", func() error {
		u := key(v.SenderAddr)
		allowed := bigOrZero(v.Allowances[u])
		if allowed.Cmp(amount) < 0 {
			return fmt.Errorf("insufficient allowance")
		}
		v.Allowances[u] = allowed.Sub(allowed, amount)
		v.Staked[u] = bigOrZero(v.Staked[u]).Add(bigOrZero(v.Staked[u]), amount)
		v.StakeTS[u] = v.Now().Unix()
		return nil
	})
}

func (v *Vault) Withdraw(_ context.Context, amount *big.Int) (domain.PendingTx, error) {
	return v.submit("withdraw", func() error {
		u := key(v.SenderAddr)
		staked := bigOrZero(v.Staked[u])
		if staked.Cmp(amount) < 0 {
			return fmt.Errorf("insufficient stake")
		}
		v.Staked[u] = staked.Sub(staked, amount)
		return nil
	})
}

func (v *Vault) ClaimYield(context.Context) (domain.PendingTx, error) {
	return v.submit("claimYield", func() error {
		v.PointsBal[key(v.SenderAddr)] += 10
		return nil
	})
}

func (v *Vault) PlaceBet(_ context.Context, marketID uint64, prediction bool, amount uint64) (domain.PendingTx, error) {
	return v.submit("placeBet", func() error {
		u := key(v.SenderAddr)
		if v.PointsBal[u] < amount {
			return fmt.Errorf("not enough points")
		}
		if marketID == 0 || marketID > uint64(len(v.Markets)) {
			return fmt.Errorf("no such market")
		}
		v.PointsBal[u] -= amount
		m := &v.Markets[marketID-1]
		if prediction {
			m.TotalYes += amount
		} else {
			m.TotalNo += amount
		}
		b := v.BetRecords[marketID][u]
		v.setBet(domain.Bet{MarketID: marketID, User: u, Amount: b.Amount + amount, Prediction: prediction})
		return nil
	})
}

func (v *Vault) ClaimWinnings(_ context.Context, marketID uint64) (domain.PendingTx, error) {
	return v.submit("claimWinnings", func() error {
		u := key(v.SenderAddr)
		b := v.BetRecords[marketID][u]
		if b.Amount == 0 || b.Claimed {
			return fmt.Errorf("nothing to claim")
		}
		b.Claimed = true
		v.setBet(b)
		v.PointsBal[u] += 2 * b.Amount
		return nil
	})
}

func (v *Vault) CreateMarket(_ context.Context, description, category string, durationSeconds uint64) (domain.PendingTx, error) {
	return v.submit("createMarket", func() error {
		if !strings.EqualFold(v.SenderAddr, v.OwnerAddr) {
			return fmt.Errorf("Ownable: caller is not the owner")
		}
		v.Markets = append(v.Markets, domain.Market{
			ID:          uint64(len(v.Markets) + 1),
			Description: description,
			Category:    category,
			Deadline:    v.Now().Add(time.Duration(durationSeconds) * time.Second).Truncate(time.Second),
			Exists:      true,
		})
		return nil
	})
}

func (v *Vault) ResolveMarket(_ context.Context, marketID uint64, result bool) (domain.PendingTx, error) {
	return v.submit("resolveMarket", func() error {
		if marketID == 0 || marketID > uint64(len(v.Markets)) {
			return fmt.Errorf("no such market")
		}
		m := &v.Markets[marketID-1]
		m.Resolved = true
		m.Result = result
		return nil
	})
}

func (v *Vault) RedeemNFT(context.Context) (domain.PendingTx, error) {
	return v.submit("redeemNFT", func() error {
		u := key(v.SenderAddr)
		if v.PointsBal[u] < 1000 {
			return fmt.Errorf("not enough points")
		}
		v.PointsBal[u] -= 1000
		return nil
	})
}

func (v *Vault) Approve(_ context.Context, _ string, amount *big.Int) (domain.PendingTx, error) {
	return v.submit("approve", func() error {
		v.Allowances[key(v.SenderAddr)] = new(big.Int).Set(amount)
		return nil
	})
}
