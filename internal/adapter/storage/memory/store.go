// Package memory is a process-local wallet store. Atomic units are serialized by a
// single mutex and undone from a journal on failure, which gives the same
// all-or-nothing and one-writer-per-wallet guarantees as the Postgres adapter.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errNotInUnit = errors.New("memory store: locked access outside an atomic unit")

// Store holds wallets and transactions in maps.
type Store struct {
	unit sync.Mutex // held for the whole of an atomic unit

	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
	txns    map[uuid.UUID]*domain.Transaction
	seq     []uuid.UUID // transaction insertion order
	active  *unitTx
	journal []func()

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		wallets: make(map[uuid.UUID]*domain.Wallet),
		txns:    make(map[uuid.UUID]*domain.Transaction),
		now:     time.Now,
	}
}

// Wallets returns the store's ports.WalletRepository view.
func (s *Store) Wallets() *WalletRepo { return &WalletRepo{s: s} }

// Transactions returns the store's ports.TransactionRepository view.
func (s *Store) Transactions() *TransactionRepo { return &TransactionRepo{s: s} }

// WithinTx implements ports.DBTransactor.
func (s *Store) WithinTx(ctx context.Context, fn ports.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.unit.Lock()
	defer s.unit.Unlock()

	tx := &unitTx{}
	s.mu.Lock()
	s.active, s.journal = tx, nil
	s.mu.Unlock()

	err := fn(ctx, tx)
	if err == nil {
		err = ctx.Err()
	}

	s.mu.Lock()
	if err != nil {
		for i := len(s.journal) - 1; i >= 0; i-- {
			s.journal[i]()
		}
	}
	s.active, s.journal = nil, nil
	tx.done = true
	s.mu.Unlock()
	return err
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Name() string { return "memory" }

// checkTx must be called with mu held.
func (s *Store) checkTx(tx pgx.Tx) error {
	u, ok := tx.(*unitTx)
	if !ok || u != s.active || u.done {
		return errNotInUnit
	}
	return nil
}

// record must be called with mu held inside a unit.
func (s *Store) record(undo func()) {
	if s.active != nil {
		s.journal = append(s.journal, undo)
	}
}

func copyWallet(w *domain.Wallet) *domain.Wallet {
	c := *w
	return &c
}

func copyTransaction(t *domain.Transaction) *domain.Transaction {
	c := *t
	if t.Metadata != nil {
		c.Metadata = append([]byte(nil), t.Metadata...)
	}
	return &c
}

// unitTx is the handle repositories receive inside WithinTx. It carries no SQL
// connection; any attempt to use it as one fails.
type unitTx struct {
	done bool
}

var errNoSQL = errors.New("memory store: SQL is not supported")

func (t *unitTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, errNoSQL }
func (t *unitTx) Commit(ctx context.Context) error          { return nil }
func (t *unitTx) Rollback(ctx context.Context) error        { return nil }
func (t *unitTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errNoSQL
}
func (t *unitTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *unitTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *unitTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errNoSQL
}
func (t *unitTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errNoSQL
}
func (t *unitTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errNoSQL
}
func (t *unitTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return errRow{}
}
func (t *unitTx) Conn() *pgx.Conn { return nil }

type errRow struct{}

func (errRow) Scan(dest ...any) error { return errNoSQL }

func notFound(kind string, id uuid.UUID) error {
	return fmt.Errorf("%s not found: %s", kind, id)
}
