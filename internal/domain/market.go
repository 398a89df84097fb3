package domain

import "time"

// Market is one binary-outcome prediction event as held by the vault
// contract. ID is 1-based and derived from the market's position in the
// contract's ordered market list.
type Market struct {
	ID          uint64
	Description string
	Category    string
	TotalYes    uint64 // points staked on YES
	TotalNo     uint64 // points staked on NO
	Resolved    bool
	Result      bool // meaningful only when Resolved
	Deadline    time.Time
	Exists      bool
}

// Expired reports whether the betting deadline has passed at now.
func (m Market) Expired(now time.Time) bool {
	return now.After(m.Deadline)
}

// Bet is one user's position in one market. A zero Amount means no bet was
// placed; the contract models absence as a zero-valued record.
type Bet struct {
	MarketID   uint64
	User       string
	Amount     uint64
	Prediction bool
	Claimed    bool
}

// Placed reports whether the record represents an actual bet.
func (b Bet) Placed() bool {
	return b.Amount > 0
}

// Won reports whether the bet's side matches the market result. Only
// meaningful for resolved markets.
func (b Bet) Won(m Market) bool {
	return m.Resolved && b.Prediction == m.Result
}
