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
	"github.com/rs/zerolog"
)

// EscrowServiceImpl implements ports.EscrowService.
type EscrowServiceImpl struct {
	wallets    ports.WalletService
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
	now        func() time.Time
}

// NewEscrowService creates a new EscrowServiceImpl.
func NewEscrowService(
	wallets ports.WalletService,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *EscrowServiceImpl {
	return &EscrowServiceImpl{
		wallets:    wallets,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		transactor: transactor,
		log:        log,
		now:        time.Now,
	}
}

// Hold moves amount from the actor's spendable balance into escrow for an order.
// An order can be paid at most once.
func (s *EscrowServiceImpl) Hold(ctx context.Context, req ports.HoldRequest) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.OrderID == uuid.Nil {
		return nil, apperror.Validation("order id is required")
	}

	w, err := s.wallets.GetOrCreate(ctx, req.Actor)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	orderID := req.OrderID
	txn := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    w.ID,
		Type:        domain.TransactionTypeOrderPayment,
		Amount:      domain.TransactionTypeOrderPayment.SignedAmount(req.Amount),
		Status:      domain.TransactionStatusEscrowed,
		OrderID:     &orderID,
		OrderCode:   req.OrderCode,
		Description: "order payment " + req.OrderCode,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.transactor.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := lockWallet(ctx, s.walletRepo, tx, w.ID)
		if err != nil {
			return err
		}
		if !locked.IsActive {
			return apperror.ErrWalletInactive()
		}
		if locked.Balance < req.Amount {
			return apperror.ErrInsufficientFunds(req.Amount - locked.Balance)
		}

		existing, err := s.txRepo.FindOrderPayment(ctx, tx, orderID,
			domain.TransactionStatusEscrowed, domain.TransactionStatusCompleted)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("find order payment: %w", err))
		}
		if existing != nil {
			return apperror.ErrDuplicateOrderPayment()
		}

		if err := s.txRepo.Create(ctx, tx, txn); err != nil {
			if errors.Is(err, ports.ErrConflict) {
				return apperror.ErrDuplicateOrderPayment()
			}
			return apperror.InternalError(fmt.Errorf("create order payment: %w", err))
		}
		_, err = applyDelta(ctx, s.walletRepo, tx, locked, domain.BalanceDelta{
			Balance:       -req.Amount,
			EscrowBalance: req.Amount,
		})
		return err
	})
	if err != nil {
		metrics.EscrowOperationsTotal.WithLabelValues("hold", outcomeOf(err)).Inc()
		return nil, err
	}

	metrics.EscrowOperationsTotal.WithLabelValues("hold", "applied").Inc()
	metrics.LedgerTransitionsTotal.WithLabelValues(string(txn.Type), string(txn.Status)).Inc()
	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("wallet_id", w.ID.String()).
		Str("order_id", orderID.String()).
		Int64("amount", req.Amount).
		Msg("order payment held in escrow")
	return txn, nil
}

// Release completes the escrowed payment for an order. The held funds leave escrow;
// crediting the recipients is the job of the distribution step. When the caller's
// amount differs from what was held, the held amount is released.
func (s *EscrowServiceImpl) Release(ctx context.Context, actor domain.ActorRef, orderID uuid.UUID, amount int64) (*domain.Transaction, error) {
	return s.settle(ctx, "release", actor, orderID, func(held int64) (domain.TransactionStatus, domain.BalanceDelta) {
		if amount != 0 && amount != held {
			s.log.Warn().
				Str("order_id", orderID.String()).
				Int64("requested", amount).
				Int64("held", held).
				Msg("release amount differs from escrowed amount, releasing held amount")
		}
		return domain.TransactionStatusCompleted, domain.BalanceDelta{EscrowBalance: -held}
	})
}

// Refund cancels the escrowed payment for an order and returns the funds to the payer.
func (s *EscrowServiceImpl) Refund(ctx context.Context, actor domain.ActorRef, orderID uuid.UUID) (*domain.Transaction, error) {
	return s.settle(ctx, "refund", actor, orderID, func(held int64) (domain.TransactionStatus, domain.BalanceDelta) {
		return domain.TransactionStatusCancelled, domain.BalanceDelta{EscrowBalance: -held, Balance: held}
	})
}

type settlement func(held int64) (domain.TransactionStatus, domain.BalanceDelta)

// settle resolves an escrowed payment. Nothing escrowed for the order is a no-op,
// which makes repeated release and refund calls harmless.
func (s *EscrowServiceImpl) settle(ctx context.Context, op string, actor domain.ActorRef, orderID uuid.UUID, decide settlement) (*domain.Transaction, error) {
	if orderID == uuid.Nil {
		return nil, apperror.Validation("order id is required")
	}
	owner, err := s.walletRepo.GetByOwner(ctx, actor)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}

	var result *domain.Transaction
	err = s.transactor.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		result = nil
		payment, err := s.txRepo.FindOrderPayment(ctx, tx, orderID, domain.TransactionStatusEscrowed)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("find order payment: %w", err))
		}
		if payment == nil {
			return nil
		}
		if owner == nil || payment.WalletID != owner.ID {
			return apperror.ErrNotFound("escrowed payment")
		}

		held := payment.AbsAmount()
		status, delta := decide(held)
		updated, err := finishTransaction(ctx, s.txRepo, tx, payment, ports.StatusUpdate{Status: status},
			map[string]any{"settled_by": op}, s.now().UTC())
		if err != nil {
			return err
		}

		w, err := lockWallet(ctx, s.walletRepo, tx, payment.WalletID)
		if err != nil {
			return err
		}
		if _, err := applyDelta(ctx, s.walletRepo, tx, w, delta); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		metrics.EscrowOperationsTotal.WithLabelValues(op, outcomeOf(err)).Inc()
		return nil, err
	}

	if result == nil {
		metrics.EscrowOperationsTotal.WithLabelValues(op, "noop").Inc()
		s.log.Warn().
			Str("order_id", orderID.String()).
			Str("operation", op).
			Msg("no escrowed payment for order, nothing to do")
		return nil, nil
	}

	metrics.EscrowOperationsTotal.WithLabelValues(op, "applied").Inc()
	s.log.Info().
		Str("tx_id", result.ID.String()).
		Str("wallet_id", result.WalletID.String()).
		Str("order_id", orderID.String()).
		Str("operation", op).
		Int64("amount", result.AbsAmount()).
		Msg("escrow settled")
	return result, nil
}

// outcomeOf labels a failed operation by its error code.
func outcomeOf(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "error"
}
