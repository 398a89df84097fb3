package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonslash/neonvault/internal/domain"
)

func TestParseTokenAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1", "1000000"},
		{"12.5", "12500000"},
		{"0.000001", "1"},
		{".5", "500000"},
		{" 3 ", "3000000"},
	}
	for _, tt := range tests {
		v, err := ParseTokenAmount(tt.in, TokenDecimals)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, v.String(), tt.in)
	}
}

func TestParseTokenAmount_Rejects(t *testing.T) {
	for _, in := range []string{"", "  ", "abc", "-1", "1.", "0", "0.0", "1.0000001", "1e6", "1,5"} {
		_, err := ParseTokenAmount(in, TokenDecimals)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "input %q", in)
	}
}

func TestFormatTokenAmount(t *testing.T) {
	assert.Equal(t, "12.5", FormatTokenAmount(big.NewInt(12_500_000), 6))
	assert.Equal(t, "0.000001", FormatTokenAmount(big.NewInt(1), 6))
	assert.Equal(t, "3", FormatTokenAmount(big.NewInt(3_000_000), 6))
	assert.Equal(t, "0", FormatTokenAmount(nil, 6))
	assert.Equal(t, "0", FormatTokenAmount(big.NewInt(0), 6))
}

func TestTokenToFloat(t *testing.T) {
	assert.InDelta(t, 12.5, TokenToFloat(big.NewInt(12_500_000), 6), 1e-12)
	assert.Zero(t, TokenToFloat(nil, 6))
}

func TestParsePoints(t *testing.T) {
	n, err := ParsePoints("50")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), n)

	for _, in := range []string{"", "0", "-3", "1.5", "x"} {
		_, err := ParsePoints(in)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "input %q", in)
	}
}

func TestCheckBet(t *testing.T) {
	open := domain.Market{ID: 1, Deadline: t0.Add(time.Hour)}

	assert.NoError(t, CheckBet(open, t0, 10, 10))
	assert.ErrorIs(t, CheckBet(open, t0, 0, 10), domain.ErrInvalidInput)

	err := CheckBet(open, t0, 11, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "low points balance")

	expired := domain.Market{ID: 2, Deadline: t0.Add(-time.Second)}
	assert.ErrorIs(t, CheckBet(expired, t0, 1, 10), domain.ErrPrecondition)

	resolved := domain.Market{ID: 3, Resolved: true, Deadline: t0.Add(time.Hour)}
	assert.ErrorIs(t, CheckBet(resolved, t0, 1, 10), domain.ErrPrecondition)
}

func TestDefaultBetAmount(t *testing.T) {
	assert.Equal(t, uint64(50), DefaultBetAmount(500))
	assert.Equal(t, uint64(20), DefaultBetAmount(20))
	assert.Equal(t, uint64(1), DefaultBetAmount(0))
}
