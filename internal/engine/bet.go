package engine

import (
	"fmt"

	"github.com/neonslash/neonvault/internal/domain"
)

// BetState is the claim lifecycle of one user's bet in one market.
type BetState string

const (
	BetNone       BetState = "no_bet"
	BetActive     BetState = "active"
	BetClaimReady BetState = "claim_ready"
	BetClaimed    BetState = "claimed"
	BetLost       BetState = "lost"
)

// ClassifyBet returns the single state b is in relative to m. A zero amount
// is always BetNone, whatever the other fields say.
func ClassifyBet(m domain.Market, b domain.Bet) BetState {
	switch {
	case !b.Placed():
		return BetNone
	case !m.Resolved:
		return BetActive
	case !b.Won(m):
		return BetLost
	case b.Claimed:
		return BetClaimed
	default:
		return BetClaimReady
	}
}

// CheckClaim rejects a claim unless the bet is exactly claim-ready.
func CheckClaim(m domain.Market, b domain.Bet) error {
	if s := ClassifyBet(m, b); s != BetClaimReady {
		return fmt.Errorf("engine: claim market %d: bet is %s: %w", m.ID, s, domain.ErrPrecondition)
	}
	return nil
}

// Label is the short status text a dashboard shows for the state.
func (s BetState) Label() string {
	switch s {
	case BetActive:
		return "Bet placed"
	case BetClaimReady:
		return "Claim winnings"
	case BetClaimed:
		return "Points Claimed"
	case BetLost:
		return "Better luck next time"
	default:
		return ""
	}
}
