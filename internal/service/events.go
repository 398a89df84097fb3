package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/engine"
)

// MarketJSON is the wire form of a projected market.
type MarketJSON struct {
	ID          uint64 `json:"id"`
	Description string `json:"description"`
	Category    string `json:"category"`
	TotalYes    uint64 `json:"total_yes"`
	TotalNo     uint64 `json:"total_no"`
	YesPercent  int    `json:"yes_percent"`
	NoPercent   int    `json:"no_percent"`
	Resolved    bool   `json:"resolved"`
	Result      bool   `json:"result"`
	Deadline    int64  `json:"deadline"`
	State       string `json:"state"`
}

// MarketViewJSON converts a projection to its wire form.
func MarketViewJSON(v engine.MarketView) MarketJSON {
	return MarketJSON{
		ID:          v.Market.ID,
		Description: v.Market.Description,
		Category:    v.Market.Category,
		TotalYes:    v.Market.TotalYes,
		TotalNo:     v.Market.TotalNo,
		YesPercent:  engine.SharePercent(v.YesShare),
		NoPercent:   engine.SharePercent(v.NoShare),
		Resolved:    v.Market.Resolved,
		Result:      v.Market.Result,
		Deadline:    v.Market.Deadline.Unix(),
		State:       string(v.State),
	}
}

// MarketsJSON projects markets at now and converts them.
func MarketsJSON(markets []domain.Market, now time.Time) []MarketJSON {
	views := engine.ProjectMarkets(markets, now)
	out := make([]MarketJSON, 0, len(views))
	for _, v := range views {
		out = append(out, MarketViewJSON(v))
	}
	return out
}

// BetJSON is the wire form of a user's bet with its claim state.
type BetJSON struct {
	MarketID   uint64 `json:"market_id"`
	Amount     uint64 `json:"amount"`
	Prediction bool   `json:"prediction"`
	Claimed    bool   `json:"claimed"`
	State      string `json:"state"`
	Label      string `json:"label,omitempty"`
}

// AccountJSON is the wire form of a user's derived account state.
type AccountJSON struct {
	User            string  `json:"user"`
	Points          uint64  `json:"points"`
	Staked          string  `json:"staked"`
	StakeTimestamp  int64   `json:"stake_timestamp,omitempty"`
	LockEnd         int64   `json:"lock_end,omitempty"`
	Locked          bool    `json:"locked"`
	DaysLeft        int     `json:"days_left"`
	CanWithdraw     bool    `json:"can_withdraw"`
	Allowance       string  `json:"allowance"`
	EffectiveBond   string  `json:"effective_bond"`
	ProjectedBond   float64 `json:"projected_bond"`
	PrincipalBond   string  `json:"principal_bond"`
	TotalSlashed    string  `json:"total_slashed"`
	TasksCompleted  uint64  `json:"tasks_completed"`
	RewardProgress  float64 `json:"reward_progress_pct"`
	RewardEligible  bool    `json:"reward_eligible"`
	RewardRemaining uint64  `json:"reward_remaining"`
	DefaultBet      uint64  `json:"default_bet"`
	IsOwner         bool    `json:"is_owner"`
	FetchedAt       int64   `json:"fetched_at"`
}

// MarketSnapshotEvent is published after every indexed market read.
type MarketSnapshotEvent struct {
	Markets []MarketJSON       `json:"markets"`
	Stats   engine.MarketStats `json:"stats"`
	At      int64              `json:"at"`
}

// AccountSnapshotEvent is published after every indexed account read.
type AccountSnapshotEvent struct {
	Account AccountJSON `json:"account"`
	Bets    []BetJSON   `json:"bets"`
}

// BondTickEvent carries one projected bond value.
type BondTickEvent struct {
	User  string  `json:"user"`
	Value float64 `json:"value"`
	At    int64   `json:"at"`
}

func publishJSON(ctx context.Context, bus domain.SignalBus, channel string, v any, logger *slog.Logger) {
	if bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		logger.ErrorContext(ctx, "marshal event failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	if err := bus.Publish(ctx, channel, payload); err != nil {
		logger.WarnContext(ctx, "publish failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}

// appendAudit mirrors an audit entry onto the durable audit stream.
func appendAudit(ctx context.Context, bus domain.SignalBus, event string, detail map[string]any, logger *slog.Logger) {
	if bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event":  event,
		"detail": detail,
		"at":     time.Now().UTC().Unix(),
	})
	if err != nil {
		return
	}
	if err := bus.StreamAppend(ctx, domain.StreamAudit, payload); err != nil {
		logger.WarnContext(ctx, "audit stream append failed", slog.String("error", err.Error()))
	}
}
