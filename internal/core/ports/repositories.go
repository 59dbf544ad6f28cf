package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"encoding/json"
	"time"

	"delivery-wallet-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx run inside an atomic unit and take row locks.
type WalletRepository interface {
	// Insert stores w unless a wallet for the same owner already exists.
	// It reports whether a row was created.
	Insert(ctx context.Context, w *domain.Wallet) (bool, error)
	GetByOwner(ctx context.Context, actor domain.ActorRef) (*domain.Wallet, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	// ApplyDelta increments the wallet's counters and returns the resulting row.
	ApplyDelta(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta domain.BalanceDelta) (*domain.Wallet, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// TransactionRepository defines persistence operations for ledger entries.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error)
	// FindOrderPayment locks the order_payment for orderID in one of statuses, if any.
	FindOrderPayment(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, statuses ...domain.TransactionStatus) (*domain.Transaction, error)
	// FindCompletedDeposit returns the completed deposit carrying the provider's id, if any.
	FindCompletedDeposit(ctx context.Context, tx pgx.Tx, provider, providerTxID string) (*domain.Transaction, error)
	FindByOrderAndType(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, txType domain.TransactionType) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, upd StatusUpdate) error
	SetPaymentURL(ctx context.Context, id uuid.UUID, url, requestID string) error
	ListStale(ctx context.Context, txType domain.TransactionType, status domain.TransactionStatus, before time.Time, limit int) ([]domain.Transaction, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// StatusUpdate is the set of columns changed when a transaction reaches a new status.
type StatusUpdate struct {
	Status                domain.TransactionStatus
	ProviderTransactionID *string
	Metadata              json.RawMessage // nil keeps the stored metadata
	ProcessedAt           *time.Time
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	WalletID uuid.UUID
	Status   *domain.TransactionStatus
	Type     *domain.TransactionType
	OrderID  *uuid.UUID
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// Normalize clamps paging to sane bounds.
func (p *TransactionListParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > 100 {
		p.PageSize = 20
	}
}

// Offset is the number of rows to skip for the current page.
func (p TransactionListParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// TxFunc is the body of an atomic unit. The tx handle must be passed to every
// repository call made inside it.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// DBTransactor runs atomic units: either every write in fn commits or none does.
type DBTransactor interface {
	WithinTx(ctx context.Context, fn TxFunc) error
}
