package redis

import (
	"context"
	"fmt"
	"time"

	"delivery-wallet-engine/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// keyPrefix namespaces every key this service writes.
	keyPrefix   = "dwe:"
	dialTimeout = 3 * time.Second

	// Callback dedup, nonce and rate-limit lookups sit on the request path.
	opTimeout = 500 * time.Millisecond
)

// NewClient connects the Redis instance holding processed-callback markers,
// request nonces and rate-limit windows.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(clientOptions(cfg))

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s db %d: %w", cfg.Addr(), cfg.DB, err)
	}

	log.Info().
		Str("redis_addr", cfg.Addr()).
		Int("redis_db", cfg.DB).
		Str("key_prefix", keyPrefix).
		Msg("callback cache connected")

	return client, nil
}

func clientOptions(cfg config.RedisConfig) *goredis.Options {
	return &goredis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	}
}
