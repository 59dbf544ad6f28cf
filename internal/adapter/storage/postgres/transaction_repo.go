package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, wallet_id, type, amount, status, order_id, order_code,
	provider, provider_transaction_id, provider_request_id, provider_payment_url,
	description, metadata, created_at, updated_at, processed_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new transaction within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, '{}'::jsonb), $14, $15, $16)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.WalletID, t.Type, t.Amount, t.Status, t.OrderID, t.OrderCode,
		t.Provider, t.ProviderTransactionID, t.ProviderRequestID, t.ProviderPaymentURL,
		t.Description, t.Metadata, t.CreatedAt, t.UpdatedAt, t.ProcessedAt,
	)
	if err != nil {
		return mapWriteError("insert transaction", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// GetByIDForUpdate fetches a transaction by ID with pessimistic locking.
func (r *TransactionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`

	t, err := scanTransaction(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get transaction for update: %w", err)
	}
	return t, nil
}

// FindOrderPayment locks the order's payment in one of the given statuses.
func (r *TransactionRepo) FindOrderPayment(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, statuses ...domain.TransactionStatus) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE order_id = $1 AND type = 'order_payment' AND status = ANY($2)
		ORDER BY created_at DESC LIMIT 1 FOR UPDATE`

	t, err := scanTransaction(tx.QueryRow(ctx, query, orderID, statusStrings(statuses)))
	if err != nil {
		return nil, fmt.Errorf("find order payment: %w", err)
	}
	return t, nil
}

// FindCompletedDeposit returns the completed deposit already carrying providerTxID.
func (r *TransactionRepo) FindCompletedDeposit(ctx context.Context, tx pgx.Tx, provider, providerTxID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE type = 'deposit' AND status = 'completed' AND provider = $1 AND provider_transaction_id = $2`

	t, err := scanTransaction(tx.QueryRow(ctx, query, provider, providerTxID))
	if err != nil {
		return nil, fmt.Errorf("find completed deposit: %w", err)
	}
	return t, nil
}

// FindByOrderAndType returns the order's transaction of the given type, if any.
func (r *TransactionRepo) FindByOrderAndType(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, txType domain.TransactionType) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE order_id = $1 AND type = $2 ORDER BY created_at LIMIT 1`

	t, err := scanTransaction(tx.QueryRow(ctx, query, orderID, txType))
	if err != nil {
		return nil, fmt.Errorf("find transaction by order and type: %w", err)
	}
	return t, nil
}

// UpdateStatus moves a transaction to a new status within a database transaction.
// Nil fields in upd keep their stored values.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, upd ports.StatusUpdate) error {
	query := `UPDATE transactions SET
		status = $2,
		provider_transaction_id = COALESCE($3, provider_transaction_id),
		metadata = COALESCE($4, metadata),
		processed_at = COALESCE($5, processed_at),
		updated_at = NOW()
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query, id, upd.Status, upd.ProviderTransactionID, upd.Metadata, upd.ProcessedAt)
	if err != nil {
		return mapWriteError("update transaction status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// SetPaymentURL records where the payer was sent to complete a deposit.
func (r *TransactionRepo) SetPaymentURL(ctx context.Context, id uuid.UUID, url, requestID string) error {
	query := `UPDATE transactions SET provider_payment_url = $1, provider_request_id = $2, updated_at = NOW()
		WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, url, requestID, id)
	if err != nil {
		return fmt.Errorf("set payment url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// ListStale returns the oldest transactions of txType still in status since before.
func (r *TransactionRepo) ListStale(ctx context.Context, txType domain.TransactionType, status domain.TransactionStatus, before time.Time, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE type = $1 AND status = $2 AND created_at < $3
		ORDER BY created_at LIMIT $4`

	rows, err := r.pool.Query(ctx, query, txType, status, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale transactions: %w", err)
	}
	return collectTransactions(rows)
}

// List fetches transactions with filtering and pagination.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	params.Normalize()

	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("wallet_id = $%d", argIdx))
	args = append(args, params.WalletID)
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, *params.Type)
		argIdx++
	}
	if params.OrderID != nil {
		conditions = append(conditions, fmt.Sprintf("order_id = $%d", argIdx))
		args = append(args, *params.OrderID)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	dataQuery := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, params.Offset())

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	txns, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}

// scanTransaction returns (nil, nil) when the row does not exist.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(
		&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.Status, &t.OrderID, &t.OrderCode,
		&t.Provider, &t.ProviderTransactionID, &t.ProviderRequestID, &t.ProviderPaymentURL,
		&t.Description, &t.Metadata, &t.CreatedAt, &t.UpdatedAt, &t.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func statusStrings(statuses []domain.TransactionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
