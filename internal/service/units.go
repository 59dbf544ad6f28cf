package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/internal/metrics"
	"delivery-wallet-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// lockWallet reads a wallet under the unit's row lock.
func lockWallet(ctx context.Context, repo ports.WalletRepository, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	w, err := repo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return w, nil
}

// applyDelta checks d against the locked wallet before writing it, so a rejected
// change never reaches the store. The store re-checks the same invariant.
func applyDelta(ctx context.Context, repo ports.WalletRepository, tx pgx.Tx, w *domain.Wallet, d domain.BalanceDelta) (*domain.Wallet, error) {
	if d.IsZero() {
		return w, nil
	}
	if _, err := w.Apply(d); err != nil {
		return nil, deltaError(w, d, err)
	}
	updated, err := repo.ApplyDelta(ctx, tx, w.ID, d)
	if err != nil {
		return nil, deltaError(w, d, err)
	}
	return updated, nil
}

func deltaError(w *domain.Wallet, d domain.BalanceDelta, err error) error {
	if errors.Is(err, domain.ErrBalanceOverflow) {
		return apperror.Validation("amount would overflow wallet balance")
	}
	if errors.Is(err, domain.ErrNegativeBalance) && w.Balance+d.Balance < 0 {
		return apperror.ErrInsufficientFunds(-(w.Balance + d.Balance))
	}
	return apperror.InternalError(fmt.Errorf("apply delta to wallet %s: %w", w.ID, err))
}

// finishTransaction moves a locked transaction to upd.Status, merging extra into its
// metadata, and returns the updated copy.
func finishTransaction(ctx context.Context, repo ports.TransactionRepository, tx pgx.Tx, txn *domain.Transaction, upd ports.StatusUpdate, extra map[string]any, now time.Time) (*domain.Transaction, error) {
	if !txn.Status.CanTransition(upd.Status) {
		return nil, apperror.ErrInvalidTransition(string(txn.Status), string(upd.Status))
	}
	if len(extra) > 0 {
		meta, err := txn.MergeMetadata(extra)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("merge metadata: %w", err))
		}
		upd.Metadata = meta
	}
	upd.ProcessedAt = &now

	if err := repo.UpdateStatus(ctx, tx, txn.ID, upd); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("update transaction status: %w", err))
	}

	updated := *txn
	updated.Status = upd.Status
	if upd.ProviderTransactionID != nil {
		updated.ProviderTransactionID = upd.ProviderTransactionID
	}
	if upd.Metadata != nil {
		updated.Metadata = upd.Metadata
	}
	updated.ProcessedAt = upd.ProcessedAt
	updated.UpdatedAt = now

	metrics.LedgerTransitionsTotal.WithLabelValues(string(updated.Type), string(updated.Status)).Inc()
	return &updated, nil
}
