// Package redis is the featurizer's view of Redis: byte values under string
// keys with a TTL, and bulk removal by key prefix for cache invalidation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/config"
	"github.com/redis/go-redis/v9"
)

// ErrDisabled means no address is configured; callers run without a cache.
var ErrDisabled = errors.New("redis disabled: no address configured")

// unlinkBatch is how many scanned keys are removed per pipeline round trip.
const unlinkBatch = 500

type Client struct {
	rdb *redis.Client
}

// NewClient connects and pings once so a bad address fails at startup.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	if cfg.Addr == "" {
		return nil, ErrDisabled
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Lookup returns the value at key. A missing key is (nil, false, nil).
func (c *Client) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return val, true, nil
}

func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// DeletePrefix unlinks every key starting with prefix and returns how many
// were removed. Keys written while the scan runs may survive.
func (c *Client) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	var (
		deleted int64
		batch   = make([]string, 0, unlinkBatch)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.rdb.Unlink(ctx, batch...).Result()
		deleted += n
		batch = batch[:0]
		return err
	}

	iter := c.rdb.Scan(ctx, 0, prefix+"*", unlinkBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == unlinkBatch {
			if err := flush(); err != nil {
				return deleted, fmt.Errorf("unlinking %s*: %w", prefix, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning %s*: %w", prefix, err)
	}
	if err := flush(); err != nil {
		return deleted, fmt.Errorf("unlinking %s*: %w", prefix, err)
	}
	return deleted, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
