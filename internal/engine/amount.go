package engine

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/neonslash/neonvault/internal/domain"
)

// TokenDecimals is the precision of the staked stable asset.
const TokenDecimals = 6

// DefaultBetCap bounds the pre-filled bet amount.
const DefaultBetCap = 50

// ParseTokenAmount converts a decimal string such as "12.5" into base units
// at the given precision. Empty, malformed, negative, zero or over-precise
// amounts are rejected.
func ParseTokenAmount(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("engine: amount is empty: %w", domain.ErrInvalidInput)
	}
	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if hasDot && frac == "" {
		return nil, fmt.Errorf("engine: amount %q is malformed: %w", s, domain.ErrInvalidInput)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("engine: amount %q is not a number: %w", s, domain.ErrInvalidInput)
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("engine: amount %q has more than %d decimals: %w", s, decimals, domain.ErrInvalidInput)
	}
	frac += strings.Repeat("0", decimals-len(frac))
	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("engine: amount %q is not a number: %w", s, domain.ErrInvalidInput)
	}
	if v.Sign() == 0 {
		return nil, fmt.Errorf("engine: amount must be greater than zero: %w", domain.ErrInvalidInput)
	}
	return v, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatTokenAmount renders base units as a decimal string, trimming
// trailing zeros.
func FormatTokenAmount(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	neg := v.Sign() < 0
	s := new(big.Int).Abs(v).String()
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// TokenToFloat converts base units to a float for display projections.
func TokenToFloat(v *big.Int, decimals int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(v),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)),
	).Float64()
	return f
}

// ParsePoints parses a whole, positive point amount.
func ParsePoints(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("engine: points amount is empty: %w", domain.ErrInvalidInput)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("engine: points amount %q is not a whole number: %w", s, domain.ErrInvalidInput)
	}
	if n == 0 {
		return 0, fmt.Errorf("engine: points amount must be greater than zero: %w", domain.ErrInvalidInput)
	}
	return n, nil
}

// CheckBet validates a bet of amount points on m at now against the user's
// balance.
func CheckBet(m domain.Market, now time.Time, amount, points uint64) error {
	if amount == 0 {
		return fmt.Errorf("engine: bet: amount must be greater than zero: %w", domain.ErrInvalidInput)
	}
	if amount > points {
		return fmt.Errorf("engine: bet: low points balance (%d < %d): %w", points, amount, domain.ErrInvalidInput)
	}
	if s := marketState(m, now); s != StateActive {
		return fmt.Errorf("engine: bet: market %d is %s: %w", m.ID, s, domain.ErrPrecondition)
	}
	return nil
}

// DefaultBetAmount pre-fills a bet form: the balance capped at
// DefaultBetCap, or 1 when the balance is empty.
func DefaultBetAmount(points uint64) uint64 {
	if v := min(points, DefaultBetCap); v > 0 {
		return v
	}
	return 1
}
