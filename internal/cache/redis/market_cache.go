package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neonslash/neonvault/internal/domain"
)

const defaultMarketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache as one Redis hash holding the
// whole indexed market list.
//
// Key schema:
//
//	{prefix}markets - hash, field = market ID, value = JSON-encoded Market
type MarketCache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client. A zero ttl
// falls back to five minutes.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = defaultMarketTTL
	}
	return &MarketCache{rdb: c.Underlying(), key: c.Key("markets"), ttl: ttl}
}

// SetAll replaces the cached list with markets in a single transaction.
func (mc *MarketCache) SetAll(ctx context.Context, markets []domain.Market) error {
	fields := make(map[string]any, len(markets))
	for _, m := range markets {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("redis: marshal market %d: %w", m.ID, err)
		}
		fields[strconv.FormatUint(m.ID, 10)] = data
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Del(ctx, mc.key)
	if len(fields) > 0 {
		pipe.HSet(ctx, mc.key, fields)
		pipe.Expire(ctx, mc.key, mc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set markets: %w", err)
	}
	return nil
}

// GetAll returns the cached markets ordered by ID. It returns
// domain.ErrNotFound when nothing is cached.
func (mc *MarketCache) GetAll(ctx context.Context) ([]domain.Market, error) {
	raw, err := mc.rdb.HGetAll(ctx, mc.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get markets: %w", err)
	}
	if len(raw) == 0 {
		return nil, domain.ErrNotFound
	}

	markets := make([]domain.Market, 0, len(raw))
	for field, data := range raw {
		var m domain.Market
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, fmt.Errorf("redis: unmarshal market %s: %w", field, err)
		}
		markets = append(markets, m)
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].ID < markets[j].ID })
	return markets, nil
}

// Invalidate drops the cached list.
func (mc *MarketCache) Invalidate(ctx context.Context) error {
	if err := mc.rdb.Del(ctx, mc.key).Err(); err != nil {
		return fmt.Errorf("redis: invalidate markets: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
