package engine

import (
	"math"
	"time"

	"github.com/neonslash/neonvault/internal/domain"
)

// MarketState is the lifecycle of a market as seen at a given instant.
type MarketState string

const (
	StateActive             MarketState = "active"
	StateAwaitingResolution MarketState = "awaiting_resolution"
	StateResolved           MarketState = "resolved"
)

// MarketView is the display projection of one market.
type MarketView struct {
	Market   domain.Market
	YesShare float64
	NoShare  float64
	State    MarketState
}

// ProjectMarket computes the odds split and lifecycle state of m at now.
// With no stakes on either side both shares are 0.5.
func ProjectMarket(m domain.Market, now time.Time) MarketView {
	yes := 0.5
	if total := float64(m.TotalYes) + float64(m.TotalNo); total > 0 {
		yes = float64(m.TotalYes) / total
	}
	return MarketView{
		Market:   m,
		YesShare: yes,
		NoShare:  1 - yes,
		State:    marketState(m, now),
	}
}

func marketState(m domain.Market, now time.Time) MarketState {
	switch {
	case m.Resolved:
		return StateResolved
	case m.Expired(now):
		return StateAwaitingResolution
	default:
		return StateActive
	}
}

// ProjectMarkets projects every market in order.
func ProjectMarkets(markets []domain.Market, now time.Time) []MarketView {
	out := make([]MarketView, len(markets))
	for i, m := range markets {
		out[i] = ProjectMarket(m, now)
	}
	return out
}

// Bettable reports whether m still accepts bets at now.
func Bettable(m domain.Market, now time.Time) bool {
	return marketState(m, now) == StateActive
}

// SharePercent renders a share as a whole percentage, e.g. 0.666 -> 67.
func SharePercent(share float64) int {
	return int(math.Round(share * 100))
}
