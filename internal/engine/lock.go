package engine

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/neonslash/neonvault/internal/domain"
)

// DefaultLockPeriod is how long staked funds stay locked after a stake.
const DefaultLockPeriod = 30 * 24 * time.Hour

const day = 24 * time.Hour

// LockView is the withdrawal lock of a stake at a given instant.
type LockView struct {
	LockEnd     time.Time // zero when the user never staked
	Locked      bool
	DaysLeft    int // 0 unless Locked
	CanWithdraw bool
}

// ComputeLock derives the lock state of s at now.
func ComputeLock(s domain.StakeRecord, period time.Duration, now time.Time) LockView {
	var v LockView
	if !s.StakeTimestamp.IsZero() && s.StakeTimestamp.Unix() > 0 {
		v.LockEnd = s.StakeTimestamp.Add(period)
		v.Locked = now.Before(v.LockEnd)
	}
	if v.Locked {
		v.DaysLeft = int(math.Ceil(v.LockEnd.Sub(now).Seconds() / day.Seconds()))
	}
	v.CanWithdraw = !v.Locked || !s.HasStake()
	return v
}

// CheckWithdraw validates a withdrawal of amount against the lock and the
// staked balance.
func CheckWithdraw(v LockView, s domain.StakeRecord, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("engine: withdraw: amount must be positive: %w", domain.ErrInvalidInput)
	}
	if !v.CanWithdraw {
		return fmt.Errorf("engine: withdraw: stake locked for %d more day(s): %w", v.DaysLeft, domain.ErrPrecondition)
	}
	staked := s.StakedAmount
	if staked == nil {
		staked = new(big.Int)
	}
	if amount.Cmp(staked) > 0 {
		return fmt.Errorf("engine: withdraw: amount %s exceeds stake %s: %w", amount, staked, domain.ErrInvalidInput)
	}
	return nil
}
