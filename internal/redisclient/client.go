// Package redisclient wraps the Redis connection shared by the queue
// layer, distributed locks and heartbeat store. It is grounded on the
// teacher's internal/clients/redis construction idiom (config-driven
// address, a Ping on connect, a small typed wrapper) adapted away from
// pub/sub forwarding (which had no consumer in this domain) towards the
// lock/queue/heartbeat primitives spec.md §4.2/§4.8 actually need.
package redisclient

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/finnish-heritage-agency/passari-workflow/internal/config"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/logger"
)

type Client struct {
	log *logger.Logger
	rdb *goredis.Client
}

func New(cfg config.RedisConfig, log *logger.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Client{log: log.With("component", "redis"), rdb: rdb}, nil
}

func (c *Client) Raw() *goredis.Client { return c.rdb }

func (c *Client) Close() error { return c.rdb.Close() }
