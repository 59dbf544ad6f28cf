package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"delivery-wallet-engine/config"
	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/internal/metrics"
	"delivery-wallet-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService.
type LedgerServiceImpl struct {
	txRepo     ports.TransactionRepository
	walletRepo ports.WalletRepository
	transactor ports.DBTransactor
	limits     config.LedgerConfig
	log        zerolog.Logger
	now        func() time.Time
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	txRepo ports.TransactionRepository,
	walletRepo ports.WalletRepository,
	transactor ports.DBTransactor,
	limits config.LedgerConfig,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		txRepo:     txRepo,
		walletRepo: walletRepo,
		transactor: transactor,
		limits:     limits,
		log:        log,
		now:        time.Now,
	}
}

// RecordDeposit creates a pending deposit and reserves it in the wallet's pending balance.
func (s *LedgerServiceImpl) RecordDeposit(ctx context.Context, req ports.DepositRecord) (*domain.Transaction, error) {
	if req.Amount < s.limits.MinDeposit || req.Amount > s.limits.MaxDeposit {
		return nil, apperror.Validation(fmt.Sprintf("deposit amount must be between %d and %d", s.limits.MinDeposit, s.limits.MaxDeposit))
	}
	if req.Provider == "" {
		return nil, apperror.Validation("provider is required")
	}

	now := s.now().UTC()
	txn := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    req.WalletID,
		Type:        domain.TransactionTypeDeposit,
		Amount:      req.Amount,
		Status:      domain.TransactionStatusPending,
		OrderID:     req.OrderID,
		Provider:    req.Provider,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.transactor.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		w, err := lockWallet(ctx, s.walletRepo, tx, req.WalletID)
		if err != nil {
			return err
		}
		if !w.IsActive {
			return apperror.ErrWalletInactive()
		}
		if err := s.txRepo.Create(ctx, tx, txn); err != nil {
			return apperror.InternalError(fmt.Errorf("create deposit: %w", err))
		}
		_, err = applyDelta(ctx, s.walletRepo, tx, w, domain.BalanceDelta{PendingBalance: req.Amount})
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.LedgerTransitionsTotal.WithLabelValues(string(txn.Type), string(txn.Status)).Inc()
	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("wallet_id", req.WalletID.String()).
		Int64("amount", req.Amount).
		Msg("deposit recorded")
	return txn, nil
}

// ConfirmDeposit settles a pending deposit once the provider reports success.
// Re-confirming a settled deposit, or confirming one that already failed, changes nothing.
func (s *LedgerServiceImpl) ConfirmDeposit(ctx context.Context, txID uuid.UUID, providerTxID string, payload json.RawMessage) (*domain.Transaction, error) {
	var result *domain.Transaction
	err := s.transactor.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		txn, err := s.lockTransaction(ctx, tx, txID)
		if err != nil {
			return err
		}
		if txn.Type != domain.TransactionTypeDeposit {
			return apperror.Validation("transaction is not a deposit")
		}
		if txn.IsTerminal() {
			result = s.terminalNoop(txn, domain.TransactionStatusCompleted)
			return nil
		}
		result, err = s.confirmLocked(ctx, tx, txn, providerTxID, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FailOrCancelDeposit abandons a pending deposit and releases its pending balance.
func (s *LedgerServiceImpl) FailOrCancelDeposit(ctx context.Context, txID uuid.UUID, status domain.TransactionStatus, reason string) (*domain.Transaction, error) {
	result, _, err := s.abandonDeposit(ctx, txID, status, reason)
	return result, err
}

// CancelExpiredDeposit cancels a pending deposit and reports whether this call
// moved it. A deposit already terminal, whoever settled it, yields false.
func (s *LedgerServiceImpl) CancelExpiredDeposit(ctx context.Context, txID uuid.UUID, reason string) (bool, error) {
	_, applied, err := s.abandonDeposit(ctx, txID, domain.TransactionStatusCancelled, reason)
	return applied, err
}

func (s *LedgerServiceImpl) abandonDeposit(ctx context.Context, txID uuid.UUID, status domain.TransactionStatus, reason string) (*domain.Transaction, bool, error) {
	if status != domain.TransactionStatusFailed && status != domain.TransactionStatusCancelled {
		return nil, false, apperror.Validation("status must be failed or cancelled")
	}

	var (
		result  *domain.Transaction
		applied bool
	)
	err := s.transactor.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		applied = false
		txn, err := s.lockTransaction(ctx, tx, txID)
		if err != nil {
			return err
		}
		if txn.Type != domain.TransactionTypeDeposit {
			return apperror.Validation("transaction is not a deposit")
		}
		if txn.IsTerminal() {
			result = s.terminalNoop(txn, status)
			return nil
		}
		result, err = s.abandonDepositLocked(ctx, tx, txn, status, reason)
		applied = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return result, applied, nil
}

// RecordWithdrawal debits the wallet immediately and leaves the withdrawal pending
// until the payout is confirmed or reversed through UpdateStatus.
func (s *LedgerServiceImpl) RecordWithdrawal(ctx context.Context, req ports.WithdrawalRecord) (*domain.Transaction, error) {
	if req.Amount < s.limits.MinWithdraw || req.Amount > s.limits.MaxWithdraw {
		return nil, apperror.Validation(fmt.Sprintf("withdrawal amount must be between %d and %d", s.limits.MinWithdraw, s.limits.MaxWithdraw))
	}

	now := s.now().UTC()
	txn := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    req.WalletID,
		Type:        domain.TransactionTypeWithdraw,
		Amount:      domain.TransactionTypeWithdraw.SignedAmount(req.Amount),
		Status:      domain.TransactionStatusPending,
		Provider:    req.Provider,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Phone != "" {
		meta, err := json.Marshal(map[string]string{"phone": req.Phone})
		if err != nil {
			return nil, apperror.InternalError(err)
		}
		txn.Metadata = meta
	}

	err := s.transactor.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		w, err := lockWallet(ctx, s.walletRepo, tx, req.WalletID)
		if err != nil {
			return err
		}
		if !w.IsActive {
			return apperror.ErrWalletInactive()
		}
		if w.Balance < req.Amount {
			return apperror.ErrInsufficientFunds(req.Amount - w.Balance)
		}
		if err := s.txRepo.Create(ctx, tx, txn); err != nil {
			return apperror.InternalError(fmt.Errorf("create withdrawal: %w", err))
		}
		_, err = applyDelta(ctx, s.walletRepo, tx, w, domain.BalanceDelta{
			Balance:          -req.Amount,
			TotalWithdrawals: req.Amount,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.LedgerTransitionsTotal.WithLabelValues(string(txn.Type), string(txn.Status)).Inc()
	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("wallet_id", req.WalletID.String()).
		Int64("amount", req.Amount).
		Msg("withdrawal recorded")
	return txn, nil
}

// UpdateStatus drives a pending deposit or withdrawal to a terminal status.
// Escrowed order payments move only through the escrow operations.
func (s *LedgerServiceImpl) UpdateStatus(ctx context.Context, txID uuid.UUID, status domain.TransactionStatus, reason string) (*domain.Transaction, error) {
	if !status.IsTerminal() {
		return nil, apperror.Validation("status must be completed, failed or cancelled")
	}

	var result *domain.Transaction
	err := s.transactor.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		txn, err := s.lockTransaction(ctx, tx, txID)
		if err != nil {
			return err
		}
		if txn.IsTerminal() {
			result = s.terminalNoop(txn, status)
			return nil
		}
		if txn.Status != domain.TransactionStatusPending || !txn.Status.CanTransition(status) {
			return apperror.ErrInvalidTransition(string(txn.Status), string(status))
		}

		switch {
		case txn.Type == domain.TransactionTypeDeposit && status == domain.TransactionStatusCompleted:
			result, err = s.confirmLocked(ctx, tx, txn, "", nil)
		case txn.Type == domain.TransactionTypeDeposit:
			result, err = s.abandonDepositLocked(ctx, tx, txn, status, reason)
		case txn.Type == domain.TransactionTypeWithdraw && status == domain.TransactionStatusCompleted:
			result, err = s.finishLocked(ctx, tx, txn, ports.StatusUpdate{Status: status}, reasonMeta(reason))
		case txn.Type == domain.TransactionTypeWithdraw:
			result, err = s.reverseWithdrawalLocked(ctx, tx, txn, status, reason)
		default:
			return apperror.ErrInvalidTransition(string(txn.Status), string(status))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AttachPaymentURL stores the provider checkout link on a deposit.
func (s *LedgerServiceImpl) AttachPaymentURL(ctx context.Context, txID uuid.UUID, url, requestID string) error {
	if err := s.txRepo.SetPaymentURL(ctx, txID, url, requestID); err != nil {
		return apperror.InternalError(fmt.Errorf("attach payment url: %w", err))
	}
	return nil
}

func (s *LedgerServiceImpl) GetTransaction(ctx context.Context, txID uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	return txn, nil
}

// History returns a page of a wallet's transactions, newest first.
func (s *LedgerServiceImpl) History(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	params.Normalize()
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return nil, 0, apperror.Validation("from must not be after to")
	}
	txns, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	return txns, total, nil
}

// confirmLocked completes a locked pending deposit and moves its amount from pending
// to spendable balance.
func (s *LedgerServiceImpl) confirmLocked(ctx context.Context, tx pgx.Tx, txn *domain.Transaction, providerTxID string, payload json.RawMessage) (*domain.Transaction, error) {
	upd := ports.StatusUpdate{Status: domain.TransactionStatusCompleted}
	extra := map[string]any{"confirmed_by": "manual"}

	if providerTxID != "" {
		dup, err := s.txRepo.FindCompletedDeposit(ctx, tx, txn.Provider, providerTxID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("find completed deposit: %w", err))
		}
		if dup != nil {
			s.log.Warn().
				Str("tx_id", txn.ID.String()).
				Str("duplicate_of", dup.ID.String()).
				Str("provider_tx_id", providerTxID).
				Msg("provider transaction already applied to another deposit")
			metrics.LedgerNoopsTotal.WithLabelValues(string(txn.Type), "duplicate_callback").Inc()
			return nil, apperror.ErrDuplicateCallback()
		}
		upd.ProviderTransactionID = &providerTxID
		extra = map[string]any{"confirmed_by": "provider", "provider_transaction_id": providerTxID}
		if len(payload) > 0 {
			extra["provider_payload"] = payload
		}
	}

	updated, err := s.finishLocked(ctx, tx, txn, upd, extra)
	if err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return nil, apperror.ErrDuplicateCallback()
		}
		return nil, err
	}

	w, err := lockWallet(ctx, s.walletRepo, tx, txn.WalletID)
	if err != nil {
		return nil, err
	}
	amount := txn.AbsAmount()
	if _, err := applyDelta(ctx, s.walletRepo, tx, w, domain.BalanceDelta{
		Balance:        amount,
		PendingBalance: -amount,
		TotalDeposits:  amount,
	}); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("wallet_id", txn.WalletID.String()).
		Str("provider_tx_id", providerTxID).
		Int64("amount", amount).
		Msg("deposit confirmed")
	return updated, nil
}

// abandonDepositLocked fails or cancels a locked pending deposit.
func (s *LedgerServiceImpl) abandonDepositLocked(ctx context.Context, tx pgx.Tx, txn *domain.Transaction, status domain.TransactionStatus, reason string) (*domain.Transaction, error) {
	updated, err := s.finishLocked(ctx, tx, txn, ports.StatusUpdate{Status: status}, reasonMeta(reason))
	if err != nil {
		return nil, err
	}

	w, err := lockWallet(ctx, s.walletRepo, tx, txn.WalletID)
	if err != nil {
		return nil, err
	}
	if _, err := applyDelta(ctx, s.walletRepo, tx, w, domain.BalanceDelta{PendingBalance: -txn.AbsAmount()}); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("wallet_id", txn.WalletID.String()).
		Str("status", string(status)).
		Str("reason", reason).
		Msg("deposit abandoned")
	return updated, nil
}

// reverseWithdrawalLocked returns a failed payout to the wallet. The credit is booked
// as a completed refund entry so totalWithdrawals never decreases.
func (s *LedgerServiceImpl) reverseWithdrawalLocked(ctx context.Context, tx pgx.Tx, txn *domain.Transaction, status domain.TransactionStatus, reason string) (*domain.Transaction, error) {
	updated, err := s.finishLocked(ctx, tx, txn, ports.StatusUpdate{Status: status}, reasonMeta(reason))
	if err != nil {
		return nil, err
	}

	w, err := lockWallet(ctx, s.walletRepo, tx, txn.WalletID)
	if err != nil {
		return nil, err
	}
	amount := txn.AbsAmount()

	meta, err := json.Marshal(map[string]string{"reversal_of": txn.ID.String(), "reason": reason})
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	now := s.now().UTC()
	refund := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    txn.WalletID,
		Type:        domain.TransactionTypeRefund,
		Amount:      amount,
		Status:      domain.TransactionStatusCompleted,
		Provider:    txn.Provider,
		Description: "withdrawal reversal",
		Metadata:    meta,
		CreatedAt:   now,
		UpdatedAt:   now,
		ProcessedAt: &now,
	}
	if err := s.txRepo.Create(ctx, tx, refund); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create withdrawal reversal: %w", err))
	}
	if _, err := applyDelta(ctx, s.walletRepo, tx, w, domain.BalanceDelta{Balance: amount}); err != nil {
		return nil, err
	}

	metrics.LedgerTransitionsTotal.WithLabelValues(string(refund.Type), string(refund.Status)).Inc()
	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("refund_tx_id", refund.ID.String()).
		Str("wallet_id", txn.WalletID.String()).
		Int64("amount", amount).
		Msg("withdrawal reversed")
	return updated, nil
}

// finishLocked writes the terminal status of a locked transaction and returns the
// updated entry.
func (s *LedgerServiceImpl) finishLocked(ctx context.Context, tx pgx.Tx, txn *domain.Transaction, upd ports.StatusUpdate, extra map[string]any) (*domain.Transaction, error) {
	return finishTransaction(ctx, s.txRepo, tx, txn, upd, extra, s.now().UTC())
}

// terminalNoop logs a transition request against a transaction that already settled.
func (s *LedgerServiceImpl) terminalNoop(txn *domain.Transaction, requested domain.TransactionStatus) *domain.Transaction {
	s.log.Warn().
		Str("tx_id", txn.ID.String()).
		Str("status", string(txn.Status)).
		Str("requested", string(requested)).
		Msg("transaction already terminal, ignoring")
	metrics.LedgerNoopsTotal.WithLabelValues(string(txn.Type), "terminal").Inc()
	return txn
}

func (s *LedgerServiceImpl) lockTransaction(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	return txn, nil
}

func reasonMeta(reason string) map[string]any {
	if reason == "" {
		return nil
	}
	return map[string]any{"reason": reason}
}
