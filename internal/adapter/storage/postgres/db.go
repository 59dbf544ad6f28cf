package postgres

import (
	"context"
	"fmt"
	"strconv"

	"delivery-wallet-engine/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// applicationName tags wallet engine sessions in pg_stat_activity.
const applicationName = "delivery-wallet-engine"

// NewPool opens the pool backing the wallet and transaction store.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open wallet store pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping wallet store %s/%s: %w", cfg.Host, cfg.DBName, err)
	}

	log.Info().
		Str("db_host", cfg.Host).
		Int("db_port", cfg.Port).
		Str("db_name", cfg.DBName).
		Int32("pool_min", poolCfg.MinConns).
		Int32("pool_max", poolCfg.MaxConns).
		Dur("tx_timeout", cfg.TxTimeout).
		Int("tx_max_retries", cfg.TxMaxRetries).
		Msg("wallet store connected")

	return pool, nil
}

// poolConfig maps DatabaseConfig onto pgx. Statements are capped at the unit-of-work
// timeout so a stuck query cannot hold wallet row locks past it.
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse wallet store dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 && cfg.MinConns <= poolCfg.MaxConns {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	params := poolCfg.ConnConfig.RuntimeParams
	params["application_name"] = applicationName
	if cfg.TxTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.TxTimeout.Milliseconds(), 10)
	}
	return poolCfg, nil
}
