package domain

import (
	"context"
	"time"
)

// MarketCache holds the most recently indexed market list.
type MarketCache interface {
	SetAll(ctx context.Context, markets []Market) error
	GetAll(ctx context.Context) ([]Market, error)
	Invalidate(ctx context.Context) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Bus channels carrying indexer and action events.
const (
	ChannelMarketSnapshot  = "ch:market_snapshot"
	ChannelAccountSnapshot = "ch:account_snapshot"
	ChannelBondTick        = "ch:bond_tick"
	ChannelNotification    = "ch:notification"
	StreamAudit            = "stream:audit"
)
