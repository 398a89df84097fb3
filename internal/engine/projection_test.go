package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/neonslash/neonvault/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestProjectMarket_NoStakesIsEvenSplit(t *testing.T) {
	v := ProjectMarket(domain.Market{Deadline: t0.Add(time.Hour)}, t0)
	assert.Equal(t, 0.5, v.YesShare)
	assert.Equal(t, 0.5, v.NoShare)
	assert.Equal(t, StateActive, v.State)
}

func TestProjectMarket_Shares(t *testing.T) {
	v := ProjectMarket(domain.Market{TotalYes: 300, TotalNo: 100, Deadline: t0.Add(time.Hour)}, t0)
	assert.InDelta(t, 0.75, v.YesShare, 1e-12)
	assert.InDelta(t, 0.25, v.NoShare, 1e-12)
	assert.InDelta(t, 1.0, v.YesShare+v.NoShare, 1e-12)
}

func TestProjectMarket_States(t *testing.T) {
	tests := []struct {
		name   string
		market domain.Market
		want   MarketState
	}{
		{"before deadline", domain.Market{Deadline: t0.Add(time.Second)}, StateActive},
		{"at deadline", domain.Market{Deadline: t0}, StateActive},
		{"past deadline", domain.Market{Deadline: t0.Add(-time.Second)}, StateAwaitingResolution},
		{"resolved before deadline", domain.Market{Resolved: true, Deadline: t0.Add(time.Hour)}, StateResolved},
		{"resolved after deadline", domain.Market{Resolved: true, Deadline: t0.Add(-time.Hour)}, StateResolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectMarket(tt.market, t0).State)
		})
	}
}

func TestBettable(t *testing.T) {
	assert.True(t, Bettable(domain.Market{Deadline: t0}, t0))
	assert.False(t, Bettable(domain.Market{Deadline: t0.Add(-time.Nanosecond)}, t0))
	assert.False(t, Bettable(domain.Market{Resolved: true, Deadline: t0.Add(time.Hour)}, t0))
}

func TestSharePercent(t *testing.T) {
	assert.Equal(t, 50, SharePercent(0.5))
	assert.Equal(t, 67, SharePercent(2.0/3.0))
	assert.Equal(t, 0, SharePercent(0))
	assert.Equal(t, 100, SharePercent(1))
}
