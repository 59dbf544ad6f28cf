package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CallbackCache implements ports.CallbackCache. It only short-circuits redelivered
// provider callbacks; the ledger's unique indexes stay authoritative.
type CallbackCache struct {
	client goredis.UniversalClient
	prefix string
}

// NewCallbackCache creates a new Redis-backed callback cache.
func NewCallbackCache(client goredis.UniversalClient) *CallbackCache {
	return &CallbackCache{
		client: client,
		prefix: keyPrefix,
	}
}

// Get returns nil, nil if the key does not exist.
func (c *CallbackCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis callback get: %w", err)
	}
	return val, nil
}

func (c *CallbackCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis callback set: %w", err)
	}
	return nil
}
