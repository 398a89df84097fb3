package domain

import (
	"context"
	"math/big"
)

// Receipt is the confirmed outcome of a submitted transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	Success     bool
}

// PendingTx is a submitted, not yet confirmed transaction.
type PendingTx interface {
	Hash() string
	// Wait blocks until the transaction is mined. A reverted transaction
	// returns the receipt together with ErrTxReverted.
	Wait(ctx context.Context) (Receipt, error)
}

// VaultReader is the side-effect-free read surface of the vault contract.
type VaultReader interface {
	Points(ctx context.Context, user string) (uint64, error)
	AllMarkets(ctx context.Context) ([]Market, error)
	MarketCount(ctx context.Context) (uint64, error)
	UserBet(ctx context.Context, marketID uint64, user string) (Bet, error)
	StakedAmount(ctx context.Context, user string) (*big.Int, error)
	StakeTimestamp(ctx context.Context, user string) (int64, error)
	EffectiveBond(ctx context.Context, user string) (*big.Int, error)
	AgentRecord(ctx context.Context, user string) (AgentRecord, error)
	Owner(ctx context.Context) (string, error)
}

// VaultWriter submits state-changing calls to the vault contract on behalf
// of the configured signer.
type VaultWriter interface {
	Sender() string
	Stake(ctx context.Context, amount *big.Int) (PendingTx, error)
	Withdraw(ctx context.Context, amount *big.Int) (PendingTx, error)
	ClaimYield(ctx context.Context) (PendingTx, error)
	PlaceBet(ctx context.Context, marketID uint64, prediction bool, amount uint64) (PendingTx, error)
	ClaimWinnings(ctx context.Context, marketID uint64) (PendingTx, error)
	CreateMarket(ctx context.Context, description, category string, durationSeconds uint64) (PendingTx, error)
	ResolveMarket(ctx context.Context, marketID uint64, result bool) (PendingTx, error)
	RedeemNFT(ctx context.Context) (PendingTx, error)
}

// TokenClient is the ERC-20 allowance surface of the staked stable asset.
type TokenClient interface {
	Allowance(ctx context.Context, owner, spender string) (*big.Int, error)
	BalanceOf(ctx context.Context, owner string) (*big.Int, error)
	Approve(ctx context.Context, spender string, amount *big.Int) (PendingTx, error)
}
