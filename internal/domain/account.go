package domain

import (
	"math/big"
	"time"
)

// StakeRecord is a user's vault position.
type StakeRecord struct {
	User           string
	StakedAmount   *big.Int // token base units
	StakeTimestamp time.Time
}

// HasStake reports whether any amount is currently staked.
func (s StakeRecord) HasStake() bool {
	return s.StakedAmount != nil && s.StakedAmount.Sign() > 0
}

// AgentRecord is the per-user bond state of the reputation-staking variant
// of the vault.
type AgentRecord struct {
	User           string
	PrincipalBond  *big.Int
	LastUpdate     time.Time
	TotalSlashed   *big.Int
	TasksCompleted uint64
}

// AccountSnapshot bundles every per-user read the vault exposes. It is the
// unit the indexer persists and publishes.
type AccountSnapshot struct {
	User          string
	Points        uint64
	Stake         StakeRecord
	Agent         AgentRecord
	EffectiveBond *big.Int
	Allowance     *big.Int
	FetchedAt     time.Time
}
