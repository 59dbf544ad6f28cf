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

// DistributionServiceImpl implements ports.DistributionService.
type DistributionServiceImpl struct {
	wallets    ports.WalletService
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
	now        func() time.Time
}

// NewDistributionService creates a new DistributionServiceImpl.
func NewDistributionService(
	wallets ports.WalletService,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *DistributionServiceImpl {
	return &DistributionServiceImpl{
		wallets:    wallets,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		transactor: transactor,
		log:        log,
		now:        time.Now,
	}
}

type legPlan struct {
	txType    domain.TransactionType
	recipient domain.ActorRef
	amount    int64
}

// DistributeOrderEarnings credits the restaurant, the driver and the platform their
// share of a delivered order. Every leg is applied on its own and at most once per
// order, so the call can be repeated after a partial failure.
func (s *DistributionServiceImpl) DistributeOrderEarnings(ctx context.Context, earnings domain.OrderEarnings) ([]domain.DistributionLeg, error) {
	if err := earnings.Validate(); err != nil {
		return nil, apperror.Validation(err.Error())
	}

	plan := []legPlan{
		{domain.TransactionTypeOrderRevenue, domain.Restaurant(earnings.RestaurantID), earnings.RestaurantAmount},
	}
	if earnings.DriverID != nil {
		plan = append(plan, legPlan{domain.TransactionTypeCommission, domain.Driver(*earnings.DriverID), earnings.DriverAmount})
	} else if earnings.DriverAmount > 0 {
		s.log.Warn().
			Str("order_id", earnings.OrderID.String()).
			Int64("amount", earnings.DriverAmount).
			Msg("driver share without a driver, skipping")
	}
	plan = append(plan, legPlan{domain.TransactionTypePlatformFee, domain.System(), earnings.PlatformAmount})

	var (
		legs []domain.DistributionLeg
		errs []error
	)
	for _, p := range plan {
		if p.amount == 0 {
			continue
		}
		leg := s.creditLeg(ctx, earnings, p)
		switch {
		case leg.Err != nil:
			metrics.DistributionLegsTotal.WithLabelValues(string(p.txType), "failed").Inc()
			errs = append(errs, fmt.Errorf("%s to %s: %w", p.txType, p.recipient, leg.Err))
			s.log.Error().Err(leg.Err).
				Str("order_id", earnings.OrderID.String()).
				Str("type", string(p.txType)).
				Msg("distribution leg failed")
		case leg.AlreadyApplied:
			metrics.DistributionLegsTotal.WithLabelValues(string(p.txType), "already_applied").Inc()
		default:
			metrics.DistributionLegsTotal.WithLabelValues(string(p.txType), "applied").Inc()
		}
		legs = append(legs, leg)
	}

	return legs, errors.Join(errs...)
}

func (s *DistributionServiceImpl) creditLeg(ctx context.Context, earnings domain.OrderEarnings, p legPlan) domain.DistributionLeg {
	leg := domain.DistributionLeg{Type: p.txType, Recipient: p.recipient.String(), Amount: p.amount}

	w, err := s.wallets.GetOrCreate(ctx, p.recipient)
	if err != nil {
		leg.Err = err
		return leg
	}

	now := s.now().UTC()
	orderID := earnings.OrderID
	txn := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    w.ID,
		Type:        p.txType,
		Amount:      p.amount,
		Status:      domain.TransactionStatusCompleted,
		OrderID:     &orderID,
		OrderCode:   earnings.OrderCode,
		Description: fmt.Sprintf("%s for order %s", p.txType, earnings.OrderCode),
		CreatedAt:   now,
		UpdatedAt:   now,
		ProcessedAt: &now,
	}

	var existing *domain.Transaction
	err = s.transactor.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		existing = nil
		found, err := s.txRepo.FindByOrderAndType(ctx, tx, orderID, p.txType)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("find distribution leg: %w", err))
		}
		if found != nil {
			existing = found
			return nil
		}

		locked, err := lockWallet(ctx, s.walletRepo, tx, w.ID)
		if err != nil {
			return err
		}
		if err := s.txRepo.Create(ctx, tx, txn); err != nil {
			if errors.Is(err, ports.ErrConflict) {
				return err
			}
			return apperror.InternalError(fmt.Errorf("create distribution leg: %w", err))
		}
		_, err = applyDelta(ctx, s.walletRepo, tx, locked, domain.BalanceDelta{Balance: p.amount})
		return err
	})

	if errors.Is(err, ports.ErrConflict) {
		// A concurrent call won the unique index; report its leg.
		existing, err = s.findLeg(ctx, orderID, p.txType)
	}
	if err != nil {
		leg.Err = err
		return leg
	}

	if existing != nil {
		if existing.Amount != p.amount || existing.WalletID != w.ID {
			s.log.Warn().
				Str("order_id", orderID.String()).
				Str("type", string(p.txType)).
				Int64("applied", existing.Amount).
				Int64("requested", p.amount).
				Msg("distribution leg already applied with different terms")
		}
		leg.Transaction = existing
		leg.AlreadyApplied = true
		return leg
	}

	metrics.LedgerTransitionsTotal.WithLabelValues(string(txn.Type), string(txn.Status)).Inc()
	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("wallet_id", w.ID.String()).
		Str("order_id", orderID.String()).
		Str("type", string(p.txType)).
		Int64("amount", p.amount).
		Msg("distribution leg credited")
	leg.Transaction = txn
	return leg
}

func (s *DistributionServiceImpl) findLeg(ctx context.Context, orderID uuid.UUID, txType domain.TransactionType) (*domain.Transaction, error) {
	var found *domain.Transaction
	err := s.transactor.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		found, err = s.txRepo.FindByOrderAndType(ctx, tx, orderID, txType)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("find distribution leg: %w", err))
		}
		if found == nil {
			return apperror.InternalError(fmt.Errorf("distribution leg %s for order %s missing after conflict", txType, orderID))
		}
		return nil
	})
	return found, err
}
