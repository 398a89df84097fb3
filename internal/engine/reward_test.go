package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/neonslash/neonvault/internal/domain"
)

func TestEvaluateReward(t *testing.T) {
	v := EvaluateReward(999, RedemptionThreshold)
	assert.False(t, v.Eligible)
	assert.Equal(t, uint64(1), v.Remaining)
	assert.InDelta(t, 99.9, v.ProgressPct, 1e-9)

	v = EvaluateReward(1500, RedemptionThreshold)
	assert.True(t, v.Eligible)
	assert.Zero(t, v.Remaining)
	assert.Equal(t, 100.0, v.ProgressPct)

	v = EvaluateReward(1000, RedemptionThreshold)
	assert.True(t, v.Eligible)
	assert.Equal(t, 100.0, v.ProgressPct)

	v = EvaluateReward(0, 0)
	assert.Equal(t, uint64(RedemptionThreshold), v.Remaining)
	assert.Zero(t, v.ProgressPct)
}

func TestCheckRedeem(t *testing.T) {
	assert.NoError(t, CheckRedeem(EvaluateReward(1000, RedemptionThreshold)))
	err := CheckRedeem(EvaluateReward(400, RedemptionThreshold))
	assert.ErrorIs(t, err, domain.ErrPrecondition)
	assert.Contains(t, err.Error(), "earn 600 more points")
}
