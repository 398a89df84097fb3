package engine

import (
	"fmt"

	"github.com/neonslash/neonvault/internal/domain"
)

// RedemptionThreshold is the point cost of redeeming the reward NFT.
const RedemptionThreshold = 1000

// RewardView is a user's progress toward the redemption threshold.
type RewardView struct {
	Balance     uint64
	Threshold   uint64
	ProgressPct float64
	Eligible    bool
	Remaining   uint64
}

// EvaluateReward computes progress of balance against threshold. Progress
// is clamped to 100.
func EvaluateReward(balance, threshold uint64) RewardView {
	if threshold == 0 {
		threshold = RedemptionThreshold
	}
	v := RewardView{
		Balance:     balance,
		Threshold:   threshold,
		ProgressPct: min(100, float64(balance)/float64(threshold)*100),
		Eligible:    balance >= threshold,
	}
	if !v.Eligible {
		v.Remaining = threshold - balance
	}
	return v
}

// CheckRedeem rejects a redemption the balance cannot cover.
func CheckRedeem(v RewardView) error {
	if !v.Eligible {
		return fmt.Errorf("engine: redeem: earn %d more points: %w", v.Remaining, domain.ErrPrecondition)
	}
	return nil
}
