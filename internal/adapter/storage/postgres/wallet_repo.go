package postgres

import (
	"context"
	"errors"
	"fmt"

	"delivery-wallet-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const walletColumns = `id, owner_type, user_id, restaurant_id, driver_id,
	balance, pending_balance, escrow_balance, total_deposits, total_withdrawals,
	is_active, is_system_wallet, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Insert creates the wallet unless its owner already has one. Uniqueness per owner is
// enforced by partial unique indexes, so concurrent first access yields a single row.
func (r *WalletRepo) Insert(ctx context.Context, w *domain.Wallet) (bool, error) {
	query := `INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		w.ID, w.OwnerType, w.UserID, w.RestaurantID, w.DriverID,
		w.Balance, w.PendingBalance, w.EscrowBalance, w.TotalDeposits, w.TotalWithdrawals,
		w.IsActive, w.IsSystemWallet, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return false, mapWriteError("insert wallet", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByOwner fetches the wallet an actor resolves to (without locking).
func (r *WalletRepo) GetByOwner(ctx context.Context, actor domain.ActorRef) (*domain.Wallet, error) {
	var (
		cond string
		args []any
	)
	switch actor.OwnerType() {
	case domain.OwnerTypeCustomer, domain.OwnerTypeAdmin:
		cond, args = "owner_type = $1 AND user_id = $2", []any{actor.OwnerType(), actor.OwnerID()}
	case domain.OwnerTypeRestaurant:
		cond, args = "owner_type = $1 AND restaurant_id = $2", []any{actor.OwnerType(), actor.OwnerID()}
	case domain.OwnerTypeDriver:
		cond, args = "owner_type = $1 AND driver_id = $2", []any{actor.OwnerType(), actor.OwnerID()}
	case domain.OwnerTypeSystem:
		cond = "is_system_wallet"
	default:
		return nil, fmt.Errorf("get wallet by owner: unknown owner type %q", actor.OwnerType())
	}

	query := `SELECT ` + walletColumns + ` FROM wallets WHERE ` + cond
	w, err := scanWallet(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("get wallet by owner: %w", err)
	}
	return w, nil
}

// GetByID fetches a wallet by its UUID (without locking).
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// GetByIDForUpdate fetches a wallet by ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// ApplyDelta increments the wallet counters in place. The CHECK constraints on the
// table reject any negative result.
func (r *WalletRepo) ApplyDelta(ctx context.Context, tx pgx.Tx, id uuid.UUID, d domain.BalanceDelta) (*domain.Wallet, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	query := `UPDATE wallets SET
		balance = balance + $2,
		pending_balance = pending_balance + $3,
		escrow_balance = escrow_balance + $4,
		total_deposits = total_deposits + $5,
		total_withdrawals = total_withdrawals + $6,
		updated_at = NOW()
		WHERE id = $1
		RETURNING ` + walletColumns

	w, err := scanWallet(tx.QueryRow(ctx, query,
		id, d.Balance, d.PendingBalance, d.EscrowBalance, d.TotalDeposits, d.TotalWithdrawals,
	))
	if err != nil {
		return nil, mapWriteError("apply wallet delta", err)
	}
	if w == nil {
		return nil, fmt.Errorf("wallet not found: %s", id)
	}
	return w, nil
}

// SetActive flips the administrative active flag.
func (r *WalletRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `UPDATE wallets SET is_active = $1, updated_at = NOW() WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("set wallet active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", id)
	}
	return nil
}

// scanWallet returns (nil, nil) when the row does not exist.
func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.OwnerType, &w.UserID, &w.RestaurantID, &w.DriverID,
		&w.Balance, &w.PendingBalance, &w.EscrowBalance, &w.TotalDeposits, &w.TotalWithdrawals,
		&w.IsActive, &w.IsSystemWallet, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}
