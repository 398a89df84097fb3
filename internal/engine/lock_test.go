package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/neonslash/neonvault/internal/domain"
)

func stakeAt(ts time.Time, amount int64) domain.StakeRecord {
	return domain.StakeRecord{StakedAmount: big.NewInt(amount), StakeTimestamp: ts}
}

func TestComputeLock_Boundaries(t *testing.T) {
	s := stakeAt(t0, 100)
	assert.Equal(t, 2_592_000*time.Second, DefaultLockPeriod)

	v := ComputeLock(s, DefaultLockPeriod, t0.Add(2_591_999*time.Second))
	assert.True(t, v.Locked)
	assert.Equal(t, 1, v.DaysLeft)
	assert.False(t, v.CanWithdraw)

	v = ComputeLock(s, DefaultLockPeriod, t0.Add(2_592_001*time.Second))
	assert.False(t, v.Locked)
	assert.Zero(t, v.DaysLeft)
	assert.True(t, v.CanWithdraw)
}

func TestComputeLock_DaysLeftRoundsUp(t *testing.T) {
	v := ComputeLock(stakeAt(t0, 1), DefaultLockPeriod, t0)
	assert.Equal(t, 30, v.DaysLeft)
	assert.Equal(t, t0.Add(DefaultLockPeriod), v.LockEnd)

	v = ComputeLock(stakeAt(t0, 1), DefaultLockPeriod, t0.Add(36*time.Hour))
	assert.Equal(t, 29, v.DaysLeft)
}

func TestComputeLock_ZeroStakeIsWithdrawable(t *testing.T) {
	v := ComputeLock(stakeAt(t0, 0), DefaultLockPeriod, t0.Add(time.Hour))
	assert.True(t, v.Locked)
	assert.True(t, v.CanWithdraw)
}

func TestComputeLock_NeverStaked(t *testing.T) {
	v := ComputeLock(domain.StakeRecord{}, DefaultLockPeriod, t0)
	assert.True(t, v.LockEnd.IsZero())
	assert.False(t, v.Locked)
	assert.True(t, v.CanWithdraw)
}

func TestCheckWithdraw(t *testing.T) {
	s := stakeAt(t0, 100)
	locked := ComputeLock(s, DefaultLockPeriod, t0.Add(time.Hour))
	open := ComputeLock(s, DefaultLockPeriod, t0.Add(DefaultLockPeriod+time.Second))

	assert.ErrorIs(t, CheckWithdraw(locked, s, big.NewInt(10)), domain.ErrPrecondition)
	assert.NoError(t, CheckWithdraw(open, s, big.NewInt(100)))
	assert.ErrorIs(t, CheckWithdraw(open, s, big.NewInt(101)), domain.ErrInvalidInput)
	assert.ErrorIs(t, CheckWithdraw(open, s, big.NewInt(0)), domain.ErrInvalidInput)
	assert.ErrorIs(t, CheckWithdraw(open, s, nil), domain.ErrInvalidInput)
}
