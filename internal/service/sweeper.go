package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"delivery-wallet-engine/config"
	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/internal/metrics"

	"github.com/rs/zerolog"
)

const expiredDepositReason = "pending deposit expired"

// Sweeper periodically cancels deposits whose payer never came back and reports
// withdrawals stuck in pending. Withdrawals are not reversed automatically: the
// payout may still be in flight at the provider.
type Sweeper struct {
	txRepo  ports.TransactionRepository
	ledger  ports.LedgerService
	cfg     config.SweeperConfig
	log     zerolog.Logger
	now     func() time.Time
	running atomic.Bool
}

// NewSweeper creates a new Sweeper.
func NewSweeper(txRepo ports.TransactionRepository, ledger ports.LedgerService, cfg config.SweeperConfig, log zerolog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		txRepo: txRepo,
		ledger: ledger,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Running reports whether the sweep loop is active.
func (s *Sweeper) Running() bool {
	return s.running.Load()
}

// Start runs the sweep loop until ctx is done. Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safeSweep(ctx)
		}
	}
}

func (s *Sweeper) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("panic", fmt.Sprint(r)).Msg("panic in sweeper")
		}
	}()

	sctx, cancel := context.WithTimeout(ctx, s.cfg.Interval)
	defer cancel()
	if _, err := s.SweepOnce(sctx); err != nil {
		s.log.Warn().Err(err).Msg("sweep failed")
	}
}

// SweepOnce cancels one batch of expired pending deposits and refreshes the stale
// withdrawal gauge. It returns how many deposits were cancelled.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now().UTC()

	expired, err := s.txRepo.ListStale(ctx, domain.TransactionTypeDeposit, domain.TransactionStatusPending,
		now.Add(-s.cfg.PendingDepositTTL), s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired deposits: %w", err)
	}

	cancelled := 0
	for _, txn := range expired {
		applied, err := s.ledger.CancelExpiredDeposit(ctx, txn.ID, expiredDepositReason)
		if err != nil {
			s.log.Warn().Err(err).Str("tx_id", txn.ID.String()).Msg("failed to cancel expired deposit")
			continue
		}
		// A callback or another sweeper may have settled it between the listing and the lock.
		if !applied {
			continue
		}
		cancelled++
		s.log.Info().
			Str("tx_id", txn.ID.String()).
			Str("wallet_id", txn.WalletID.String()).
			Int64("amount", txn.AbsAmount()).
			Msg("cancelled expired deposit")
	}
	metrics.SweptDepositsTotal.Add(float64(cancelled))

	if s.cfg.WithdrawStaleTTL > 0 {
		stale, err := s.txRepo.ListStale(ctx, domain.TransactionTypeWithdraw, domain.TransactionStatusPending,
			now.Add(-s.cfg.WithdrawStaleTTL), s.cfg.BatchSize)
		if err != nil {
			return cancelled, fmt.Errorf("list stale withdrawals: %w", err)
		}
		metrics.StaleWithdrawals.Set(float64(len(stale)))
		for _, txn := range stale {
			s.log.Warn().
				Str("tx_id", txn.ID.String()).
				Str("wallet_id", txn.WalletID.String()).
				Time("created_at", txn.CreatedAt).
				Msg("withdrawal pending past its expected settlement time")
		}
	}

	return cancelled, nil
}
