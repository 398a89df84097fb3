package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/neonslash/neonvault/internal/domain"
)

const (
	// streamMaxLen caps each stream via XADD MAXLEN ~.
	streamMaxLen int64 = 10000

	subscriberBuffer = 128
	payloadField     = "payload"
)

// SignalBus fans indexer snapshots, bond ticks and notifications out over
// Pub/Sub and keeps the audit trail in a capped stream.
type SignalBus struct {
	rdb *redis.Client
	key func(string) string
}

var _ domain.SignalBus = (*SignalBus)(nil)

// NewSignalBus creates a SignalBus on c.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying(), key: c.Key}
}

// Publish sends payload on channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, sb.key(channel), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe listens on channel, or on every matching channel when it holds
// glob characters. The returned channel closes once ctx is done.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	name := sb.key(channel)
	pubsub := sb.rdb.Subscribe(ctx, name)
	if hasPattern(channel) {
		_ = pubsub.Close()
		pubsub = sb.rdb.PSubscribe(ctx, name)
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, subscriberBuffer)
	go forward(ctx, pubsub, out)
	return out, nil
}

func forward(ctx context.Context, pubsub *redis.PubSub, out chan<- []byte) {
	defer close(out)
	defer pubsub.Close()

	in := pubsub.Channel()
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			msg = m
		}
		select {
		case out <- []byte(msg.Payload):
		case <-ctx.Done():
			return
		}
	}
}

func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// StreamAppend adds payload to stream, trimming it to about streamMaxLen
// entries.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: sb.key(stream),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: []any{payloadField, payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries with IDs strictly after lastID.
// "0" or "" reads from the start. It never blocks.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	start := "-"
	if lastID != "" && lastID != "0" {
		start = "(" + lastID
	}
	entries, err := sb.rdb.XRangeN(ctx, sb.key(stream), start, "+", int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	msgs := make([]domain.StreamMessage, 0, len(entries))
	for _, e := range entries {
		if data, ok := payloadOf(e.Values); ok {
			msgs = append(msgs, domain.StreamMessage{ID: e.ID, Payload: data})
		}
	}
	return msgs, nil
}

func payloadOf(values map[string]any) ([]byte, bool) {
	switch v := values[payloadField].(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}
