package service

import (
	"context"
	"testing"

	"delivery-wallet-engine/config"
	"delivery-wallet-engine/internal/adapter/storage/memory"
	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testLimits = config.LedgerConfig{
	MinDeposit:  10_000,
	MaxDeposit:  50_000_000,
	MinWithdraw: 50_000,
	MaxWithdraw: 50_000_000,
}

// engine wires every ledger service over one in-memory store.
type engine struct {
	store        *memory.Store
	wallets      *WalletServiceImpl
	ledger       *LedgerServiceImpl
	escrow       *EscrowServiceImpl
	distribution *DistributionServiceImpl
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	store := memory.NewStore()
	log := zerolog.Nop()

	wallets := NewWalletService(store.Wallets(), log)
	return &engine{
		store:        store,
		wallets:      wallets,
		ledger:       NewLedgerService(store.Transactions(), store.Wallets(), store, testLimits, log),
		escrow:       NewEscrowService(wallets, store.Wallets(), store.Transactions(), store, log),
		distribution: NewDistributionService(wallets, store.Wallets(), store.Transactions(), store, log),
	}
}

// fund gives actor a wallet holding balance through a confirmed deposit.
func (e *engine) fund(t *testing.T, actor domain.ActorRef, balance int64) *domain.Wallet {
	t.Helper()
	ctx := context.Background()
	w, err := e.wallets.GetOrCreate(ctx, actor)
	require.NoError(t, err)
	if balance == 0 {
		return w
	}
	dep, err := e.ledger.RecordDeposit(ctx, ports.DepositRecord{WalletID: w.ID, Amount: balance, Provider: "momo"})
	require.NoError(t, err)
	_, err = e.ledger.ConfirmDeposit(ctx, dep.ID, uuid.NewString(), nil)
	require.NoError(t, err)
	return e.wallet(t, w.ID)
}

func (e *engine) wallet(t *testing.T, id uuid.UUID) *domain.Wallet {
	t.Helper()
	w, err := e.store.Wallets().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, w)
	return w
}

func (e *engine) transaction(t *testing.T, id uuid.UUID) *domain.Transaction {
	t.Helper()
	txn, err := e.store.Transactions().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, txn)
	return txn
}

func (e *engine) history(t *testing.T, walletID uuid.UUID) []domain.Transaction {
	t.Helper()
	txns, _, err := e.store.Transactions().List(context.Background(), ports.TransactionListParams{WalletID: walletID, PageSize: 100})
	require.NoError(t, err)
	return txns
}

// requireReconciled checks that a wallet's balances equal what its ledger entries account for.
func (e *engine) requireReconciled(t *testing.T, walletID uuid.UUID) {
	t.Helper()
	w := e.wallet(t, walletID)

	var pendingDeposits, credits, escrowed, released int64
	for _, txn := range e.history(t, walletID) {
		switch {
		case txn.Type == domain.TransactionTypeDeposit && txn.Status == domain.TransactionStatusPending:
			pendingDeposits += txn.Amount
		case txn.Type.IsDistribution() || txn.Type == domain.TransactionTypeRefund:
			credits += txn.Amount
		case txn.Type == domain.TransactionTypeOrderPayment && txn.Status == domain.TransactionStatusEscrowed:
			escrowed += txn.AbsAmount()
		case txn.Type == domain.TransactionTypeOrderPayment && txn.Status == domain.TransactionStatusCompleted:
			released += txn.AbsAmount()
		}
	}

	require.GreaterOrEqual(t, w.Balance, int64(0))
	require.GreaterOrEqual(t, w.PendingBalance, int64(0))
	require.GreaterOrEqual(t, w.EscrowBalance, int64(0))
	require.Equal(t, pendingDeposits, w.PendingBalance, "pending balance")
	require.Equal(t, escrowed, w.EscrowBalance, "escrow balance")
	require.Equal(t,
		w.TotalDeposits+pendingDeposits+credits-w.TotalWithdrawals-released,
		w.Balance+w.EscrowBalance+w.PendingBalance,
		"funds held must equal funds accounted for")
}

// failingTransactor runs units on the store and then aborts them with fail's error, if any.
type failingTransactor struct {
	inner ports.DBTransactor
	fail  func() error
}

func (f failingTransactor) WithinTx(ctx context.Context, fn ports.TxFunc) error {
	return f.inner.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return f.fail()
	})
}
