package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonslash/neonvault/internal/domain"
)

func TestClassifyBet(t *testing.T) {
	open := domain.Market{ID: 1}
	yes := domain.Market{ID: 1, Resolved: true, Result: true}

	tests := []struct {
		name   string
		market domain.Market
		bet    domain.Bet
		want   BetState
	}{
		{"zero amount open market", open, domain.Bet{}, BetNone},
		{"zero amount claimed flag ignored", yes, domain.Bet{Prediction: true, Claimed: true}, BetNone},
		{"open market", open, domain.Bet{Amount: 10, Prediction: true}, BetActive},
		{"won unclaimed", yes, domain.Bet{Amount: 10, Prediction: true}, BetClaimReady},
		{"won claimed", yes, domain.Bet{Amount: 10, Prediction: true, Claimed: true}, BetClaimed},
		{"lost", yes, domain.Bet{Amount: 10, Prediction: false}, BetLost},
		{"lost on no result", domain.Market{Resolved: true, Result: false}, domain.Bet{Amount: 5, Prediction: true}, BetLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyBet(tt.market, tt.bet))
		})
	}
}

func TestCheckClaim(t *testing.T) {
	m := domain.Market{ID: 3, Resolved: true, Result: false}

	require.NoError(t, CheckClaim(m, domain.Bet{Amount: 1, Prediction: false}))

	err := CheckClaim(m, domain.Bet{Amount: 1, Prediction: false, Claimed: true})
	assert.ErrorIs(t, err, domain.ErrPrecondition)

	err = CheckClaim(m, domain.Bet{})
	assert.ErrorIs(t, err, domain.ErrPrecondition)

	err = CheckClaim(domain.Market{ID: 3}, domain.Bet{Amount: 1})
	assert.ErrorIs(t, err, domain.ErrPrecondition)
}

func TestBetState_Label(t *testing.T) {
	assert.Equal(t, "Points Claimed", BetClaimed.Label())
	assert.Equal(t, "Better luck next time", BetLost.Label())
	assert.Empty(t, BetNone.Label())
}
