package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"delivery-wallet-engine/config"
	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSweeper_CancelsExpiredDeposits(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	w := e.fund(t, domain.Customer(uuid.New()), 0)

	expired, err := e.ledger.RecordDeposit(ctx, ports.DepositRecord{WalletID: w.ID, Amount: 30_000, Provider: "momo"})
	require.NoError(t, err)
	settled, err := e.ledger.RecordDeposit(ctx, ports.DepositRecord{WalletID: w.ID, Amount: 70_000, Provider: "momo"})
	require.NoError(t, err)
	_, err = e.ledger.ConfirmDeposit(ctx, settled.ID, "provider-1", nil)
	require.NoError(t, err)

	sw := NewSweeper(e.store.Transactions(), e.ledger, config.SweeperConfig{PendingDepositTTL: 30 * time.Minute}, zerolog.Nop())
	sw.now = func() time.Time { return time.Now().Add(time.Hour) }

	n, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored := e.transaction(t, expired.ID)
	assert.Equal(t, domain.TransactionStatusCancelled, stored.Status)
	assert.Contains(t, string(stored.Metadata), expiredDepositReason)

	got := e.wallet(t, w.ID)
	assert.Equal(t, int64(0), got.PendingBalance)
	assert.Equal(t, int64(70_000), got.Balance)
	e.requireReconciled(t, w.ID)

	n, err = sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeper_LeavesFreshDeposits(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	w := e.fund(t, domain.Customer(uuid.New()), 0)

	dep, err := e.ledger.RecordDeposit(ctx, ports.DepositRecord{WalletID: w.ID, Amount: 30_000, Provider: "momo"})
	require.NoError(t, err)

	sw := NewSweeper(e.store.Transactions(), e.ledger, config.SweeperConfig{PendingDepositTTL: 30 * time.Minute}, zerolog.Nop())
	n, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, domain.TransactionStatusPending, e.transaction(t, dep.ID).Status)
}

func TestSweeper_DoesNotReverseStaleWithdrawals(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	w := e.fund(t, domain.Driver(uuid.New()), 200_000)

	wd, err := e.ledger.RecordWithdrawal(ctx, ports.WithdrawalRecord{WalletID: w.ID, Amount: 100_000})
	require.NoError(t, err)

	sw := NewSweeper(e.store.Transactions(), e.ledger, config.SweeperConfig{
		PendingDepositTTL: 30 * time.Minute,
		WithdrawStaleTTL:  time.Hour,
	}, zerolog.Nop())
	sw.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = sw.SweepOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionStatusPending, e.transaction(t, wd.ID).Status)
	assert.Equal(t, int64(100_000), e.wallet(t, w.ID).Balance)
}

func TestSweeper_SkipsDepositSettledMeanwhile(t *testing.T) {
	ctrl := gomock.NewController(t)
	txRepo := mocks.NewMockTransactionRepository(ctrl)
	ledger := mocks.NewMockLedgerService(ctrl)

	pending := domain.Transaction{ID: uuid.New(), WalletID: uuid.New(), Type: domain.TransactionTypeDeposit, Amount: 30_000}
	broken := domain.Transaction{ID: uuid.New(), WalletID: uuid.New(), Type: domain.TransactionTypeDeposit, Amount: 30_000}

	txRepo.EXPECT().ListStale(gomock.Any(), domain.TransactionTypeDeposit, domain.TransactionStatusPending, gomock.Any(), 100).
		Return([]domain.Transaction{pending, broken}, nil)
	ledger.EXPECT().CancelExpiredDeposit(gomock.Any(), pending.ID, expiredDepositReason).Return(false, nil)
	ledger.EXPECT().CancelExpiredDeposit(gomock.Any(), broken.ID, expiredDepositReason).Return(false, errors.New("db down"))

	sw := NewSweeper(txRepo, ledger, config.SweeperConfig{PendingDepositTTL: time.Minute}, zerolog.Nop())
	n, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeper_DoesNotCountDepositCancelledByUser(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	w := e.fund(t, domain.Customer(uuid.New()), 0)

	dep, err := e.ledger.RecordDeposit(ctx, ports.DepositRecord{WalletID: w.ID, Amount: 30_000, Provider: "momo"})
	require.NoError(t, err)
	stale, err := e.ledger.RecordDeposit(ctx, ports.DepositRecord{WalletID: w.ID, Amount: 20_000, Provider: "momo"})
	require.NoError(t, err)

	// Stands in for the listing having been taken before the user cancelled.
	ctrl := gomock.NewController(t)
	txRepo := mocks.NewMockTransactionRepository(ctrl)
	txRepo.EXPECT().ListStale(gomock.Any(), domain.TransactionTypeDeposit, domain.TransactionStatusPending, gomock.Any(), 100).
		Return([]domain.Transaction{*dep, *stale}, nil)

	_, err = e.ledger.FailOrCancelDeposit(ctx, dep.ID, domain.TransactionStatusCancelled, "user declined")
	require.NoError(t, err)

	sw := NewSweeper(txRepo, e.ledger, config.SweeperConfig{PendingDepositTTL: 30 * time.Minute}, zerolog.Nop())
	n, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, domain.TransactionStatusCancelled, e.transaction(t, dep.ID).Status)
	assert.NotContains(t, string(e.transaction(t, dep.ID).Metadata), expiredDepositReason)
	assert.Equal(t, domain.TransactionStatusCancelled, e.transaction(t, stale.ID).Status)
	assert.Zero(t, e.wallet(t, w.ID).PendingBalance)
	e.requireReconciled(t, w.ID)
}

func TestSweeper_StartStopsWithContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	txRepo := mocks.NewMockTransactionRepository(ctrl)
	ledger := mocks.NewMockLedgerService(ctrl)
	txRepo.EXPECT().ListStale(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	sw := NewSweeper(txRepo, ledger, config.SweeperConfig{Interval: 5 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Start(ctx)
		close(done)
	}()

	require.Eventually(t, sw.Running, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
	assert.False(t, sw.Running())
}
