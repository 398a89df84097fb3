package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	// Event narrows audit listings to one event name.
	Event string
}

// MarketStore persists indexed market snapshots.
type MarketStore interface {
	UpsertBatch(ctx context.Context, markets []Market) error
	GetByID(ctx context.Context, id uint64) (Market, error)
	List(ctx context.Context) ([]Market, error)
	ListResolvedBefore(ctx context.Context, before time.Time) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// BetStore persists per-user bet records.
type BetStore interface {
	UpsertBatch(ctx context.Context, bets []Bet) error
	ListByUser(ctx context.Context, user string) ([]Bet, error)
}

// AccountStore persists per-user account snapshots.
type AccountStore interface {
	Upsert(ctx context.Context, snap AccountSnapshot) error
	Get(ctx context.Context, user string) (AccountSnapshot, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
