// Package redis backs the market cache, rate limiter, sweep locks and the
// event bus with go-redis/v9. Every key, channel and stream is namespaced
// with the configured prefix so several deployments can share one server.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	// Addr is host:port, or a redis:// / rediss:// URL as handed out by
	// managed providers. URL credentials and DB win over the fields below.
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	KeyPrefix  string
}

func (cfg ClientConfig) options() (*redis.Options, error) {
	var opts *redis.Options
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		parsed, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MaxRetries != 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.TLSEnabled && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	opts.ClientName = "neonvault"
	opts.DialTimeout = 5 * time.Second
	return opts, nil
}

// Client is a namespaced go-redis client.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// New connects and pings.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return &Client{rdb: rdb, prefix: cfg.KeyPrefix}, nil
}

// Ping satisfies the health checker.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Key applies the namespace prefix.
func (c *Client) Key(name string) string {
	return c.prefix + name
}

// Close releases the pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the driver to the other types in this package.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
