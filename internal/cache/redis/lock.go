package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/neonslash/neonvault/internal/domain"
)

// releaseScript deletes the lock only while it still holds our token, so an
// expired holder cannot release a lock someone else has since taken.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

const releaseTimeout = 5 * time.Second

// LockManager guards the agent's wave and sweep jobs so only one process
// runs each at a time.
type LockManager struct {
	rdb    *redis.Client
	prefix string
	owner  string
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager on c.
func NewLockManager(c *Client) *LockManager {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return &LockManager{rdb: c.Underlying(), prefix: c.Key("lock:"), owner: host}
}

// Acquire takes key for ttl. The returned release func is idempotent.
// domain.ErrLockHeld means another process holds the lock.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	name := lm.prefix + key
	token := lm.owner + "/" + uuid.NewString()

	res, err := lm.rdb.SetArgs(ctx, name, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrLockHeld
	}
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if res != "OK" {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			_ = releaseScript.Run(rctx, lm.rdb, []string{name}, token).Err()
		})
	}, nil
}
