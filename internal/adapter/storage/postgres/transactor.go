package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delivery-wallet-engine/config"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/internal/metrics"
	"delivery-wallet-engine/internal/retry"
	"delivery-wallet-engine/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Transactor implements ports.DBTransactor on top of pgx transactions at
// REPEATABLE READ. Units that lose a serialization race or a deadlock are re-run.
type Transactor struct {
	pool    Pool
	timeout time.Duration
	policy  retry.Policy
	log     zerolog.Logger
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool, cfg config.DatabaseConfig, log zerolog.Logger) *Transactor {
	attempts := cfg.TxMaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	return &Transactor{
		pool:    pool,
		timeout: cfg.TxTimeout,
		policy:  retry.Policy{MaxAttempts: attempts, BaseDelay: 10 * time.Millisecond, MaxDelay: 200 * time.Millisecond},
		log:     log,
	}
}

// WithinTx runs fn in a single database transaction, committing only if fn succeeds.
func (t *Transactor) WithinTx(ctx context.Context, fn ports.TxFunc) error {
	return retry.Do(ctx, t.policy, func(attempt int) error {
		err := t.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if isTransient(err) {
			metrics.TxRetriesTotal.Inc()
			t.log.Warn().Err(err).Int("attempt", attempt).Msg("atomic unit conflicted, retrying")
			return err
		}
		return retry.Permanent(err)
	})
}

func (t *Transactor) runOnce(ctx context.Context, fn ports.TxFunc) (err error) {
	uctx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		uctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.pool.BeginTx(uctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return t.timeoutOr(ctx, uctx, fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				t.log.Error().Err(rbErr).Msg("rollback failed")
			}
		}
	}()

	if err = fn(uctx, tx); err != nil {
		return t.timeoutOr(ctx, uctx, err)
	}
	if err = tx.Commit(uctx); err != nil {
		return t.timeoutOr(ctx, uctx, fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// timeoutOr reports a unit that ran past its own deadline as a lock timeout.
func (t *Transactor) timeoutOr(parent, unit context.Context, err error) error {
	if parent.Err() == nil && errors.Is(unit.Err(), context.DeadlineExceeded) {
		return apperror.ErrLockTimeout(err)
	}
	return err
}
