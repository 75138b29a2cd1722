// Package redis implements the domain cache, lock, rate limit and bus
// interfaces using go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every key this service writes.
const keyPrefix = "policast:"

// ClientConfig holds Redis connection parameters. Addr is either a
// redis:// URL, a single host:port, or a comma-separated list of cluster
// or sentinel nodes.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// MasterName selects sentinel mode.
	MasterName string
}

// Client owns the connection shared by the caches, locks, limiter and bus.
type Client struct {
	rdb redis.UniversalClient
}

// New connects and pings.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewUniversalClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

func options(cfg ClientConfig) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
		MasterName: cfg.MasterName,
		ClientName: "policast",
	}
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		u, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		opts.Addrs = []string{u.Addr}
		opts.Username = u.Username
		if u.Password != "" {
			opts.Password = u.Password
		}
		opts.DB = u.DB
		opts.TLSConfig = u.TLSConfig
	} else {
		for _, a := range strings.Split(cfg.Addr, ",") {
			if a = strings.TrimSpace(a); a != "" {
				opts.Addrs = append(opts.Addrs, a)
			}
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("redis: no address in %q", cfg.Addr)
	}
	if cfg.TLSEnabled && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes every pooled connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
