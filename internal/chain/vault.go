package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/neonslash/neonvault/internal/domain"
)

// Compile-time interface checks.
var (
	_ domain.VaultReader = (*Vault)(nil)
	_ domain.VaultWriter = (*Vault)(nil)
)

// marketTuple mirrors one element of getAllMarkets().
type marketTuple struct {
	Description string
	Category    string
	TotalYes    *big.Int
	TotalNo     *big.Int
	Resolved    bool
	Result      bool
	Deadline    *big.Int
	Exists      bool
}

// Vault binds the prediction vault contract. Reads work without a
// transactor; writes return domain.ErrNoSigner when none is configured.
type Vault struct {
	backend Backend
	address common.Address
	tx      *Transactor
}

// NewVault binds the vault at address. tx may be nil for a read-only binding.
func NewVault(backend Backend, address common.Address, tx *Transactor) *Vault {
	return &Vault{backend: backend, address: address, tx: tx}
}

// Address returns the contract address.
func (v *Vault) Address() common.Address { return v.address }

func (v *Vault) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := vaultABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	res, err := v.backend.CallContract(ctx, ethereum.CallMsg{To: &v.address, Data: data}, nil)
	if err != nil {
		return nil, external(method, err)
	}
	out, err := vaultABI.Unpack(method, res)
	if err != nil {
		return nil, external("unpack "+method, err)
	}
	return out, nil
}

func (v *Vault) callBig(ctx context.Context, method string, args ...any) (*big.Int, error) {
	out, err := v.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	n, ok := out[0].(*big.Int)
	if !ok || n == nil {
		return nil, fmt.Errorf("chain: %s: unexpected output %T: %w", method, out[0], domain.ErrExternal)
	}
	return n, nil
}

func (v *Vault) Points(ctx context.Context, user string) (uint64, error) {
	addr, err := ParseAddress(user)
	if err != nil {
		return 0, err
	}
	n, err := v.callBig(ctx, "getPoints", addr)
	if err != nil {
		return 0, err
	}
	return toUint64(n), nil
}

func (v *Vault) MarketCount(ctx context.Context) (uint64, error) {
	n, err := v.callBig(ctx, "marketCount")
	if err != nil {
		return 0, err
	}
	return toUint64(n), nil
}

// AllMarkets returns every market in contract order. IDs are the 1-based
// list positions.
func (v *Vault) AllMarkets(ctx context.Context) ([]domain.Market, error) {
	out, err := v.call(ctx, "getAllMarkets")
	if err != nil {
		return nil, err
	}
	tuples := *abi.ConvertType(out[0], new([]marketTuple)).(*[]marketTuple)
	markets := make([]domain.Market, 0, len(tuples))
	for i, t := range tuples {
		markets = append(markets, domain.Market{
			ID:          uint64(i) + 1,
			Description: t.Description,
			Category:    t.Category,
			TotalYes:    toUint64(t.TotalYes),
			TotalNo:     toUint64(t.TotalNo),
			Resolved:    t.Resolved,
			Result:      t.Result,
			Deadline:    time.Unix(int64(toUint64(t.Deadline)), 0).UTC(),
			Exists:      t.Exists,
		})
	}
	return markets, nil
}

func (v *Vault) UserBet(ctx context.Context, marketID uint64, user string) (domain.Bet, error) {
	addr, err := ParseAddress(user)
	if err != nil {
		return domain.Bet{}, err
	}
	out, err := v.call(ctx, "userBets", new(big.Int).SetUint64(marketID), addr)
	if err != nil {
		return domain.Bet{}, err
	}
	if len(out) != 3 {
		return domain.Bet{}, fmt.Errorf("chain: userBets: %d outputs: %w", len(out), domain.ErrExternal)
	}
	amount, _ := out[0].(*big.Int)
	prediction, _ := out[1].(bool)
	claimed, _ := out[2].(bool)
	return domain.Bet{
		MarketID:   marketID,
		User:       user,
		Amount:     toUint64(amount),
		Prediction: prediction,
		Claimed:    claimed,
	}, nil
}

func (v *Vault) StakedAmount(ctx context.Context, user string) (*big.Int, error) {
	addr, err := ParseAddress(user)
	if err != nil {
		return nil, err
	}
	return v.callBig(ctx, "stakedUSDC", addr)
}

func (v *Vault) StakeTimestamp(ctx context.Context, user string) (int64, error) {
	addr, err := ParseAddress(user)
	if err != nil {
		return 0, err
	}
	n, err := v.callBig(ctx, "stakeTimestamp", addr)
	if err != nil {
		return 0, err
	}
	return int64(toUint64(n)), nil
}

func (v *Vault) EffectiveBond(ctx context.Context, user string) (*big.Int, error) {
	addr, err := ParseAddress(user)
	if err != nil {
		return nil, err
	}
	return v.callBig(ctx, "effectiveBond", addr)
}

func (v *Vault) AgentRecord(ctx context.Context, user string) (domain.AgentRecord, error) {
	addr, err := ParseAddress(user)
	if err != nil {
		return domain.AgentRecord{}, err
	}
	out, err := v.call(ctx, "agentRecord", addr)
	if err != nil {
		return domain.AgentRecord{}, err
	}
	if len(out) != 4 {
		return domain.AgentRecord{}, fmt.Errorf("chain: agentRecord: %d outputs: %w", len(out), domain.ErrExternal)
	}
	principal, _ := out[0].(*big.Int)
	last, _ := out[1].(*big.Int)
	slashed, _ := out[2].(*big.Int)
	tasks, _ := out[3].(*big.Int)
	rec := domain.AgentRecord{
		User:           user,
		PrincipalBond:  nonNil(principal),
		TotalSlashed:   nonNil(slashed),
		TasksCompleted: toUint64(tasks),
	}
	if ts := toUint64(last); ts > 0 {
		rec.LastUpdate = time.Unix(int64(ts), 0).UTC()
	}
	return rec, nil
}

func (v *Vault) Owner(ctx context.Context) (string, error) {
	out, err := v.call(ctx, "owner")
	if err != nil {
		return "", err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("chain: owner: unexpected output %T: %w", out[0], domain.ErrExternal)
	}
	return addr.Hex(), nil
}

// Sender returns the signing address, or "" for a read-only binding.
func (v *Vault) Sender() string {
	if v.tx == nil {
		return ""
	}
	return v.tx.From().Hex()
}

func (v *Vault) send(ctx context.Context, method string, args ...any) (domain.PendingTx, error) {
	if v.tx == nil {
		return nil, fmt.Errorf("chain: %s: %w", method, domain.ErrNoSigner)
	}
	data, err := vaultABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	return v.tx.Send(ctx, v.address, data, method)
}

func (v *Vault) Stake(ctx context.Context, amount *big.Int) (domain.PendingTx, error) {
	return v.send(ctx, "stake", amount)
}

func (v *Vault) Withdraw(ctx context.Context, amount *big.Int) (domain.PendingTx, error) {
	return v.send(ctx, "withdraw", amount)
}

func (v *Vault) ClaimYield(ctx context.Context) (domain.PendingTx, error) {
	return v.send(ctx, "claimYield")
}

func (v *Vault) PlaceBet(ctx context.Context, marketID uint64, prediction bool, amount uint64) (domain.PendingTx, error) {
	return v.send(ctx, "placeBet", new(big.Int).SetUint64(marketID), prediction, new(big.Int).SetUint64(amount))
}

func (v *Vault) ClaimWinnings(ctx context.Context, marketID uint64) (domain.PendingTx, error) {
	return v.send(ctx, "claimWinnings", new(big.Int).SetUint64(marketID))
}

func (v *Vault) CreateMarket(ctx context.Context, description, category string, durationSeconds uint64) (domain.PendingTx, error) {
	return v.send(ctx, "createMarket", description, category, new(big.Int).SetUint64(durationSeconds))
}

func (v *Vault) ResolveMarket(ctx context.Context, marketID uint64, result bool) (domain.PendingTx, error) {
	return v.send(ctx, "resolveMarket", new(big.Int).SetUint64(marketID), result)
}

func (v *Vault) RedeemNFT(ctx context.Context) (domain.PendingTx, error) {
	return v.send(ctx, "redeemNFT")
}

func nonNil(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
