package service

import (
	"context"
	"fmt"
	"time"

	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	log        zerolog.Logger
	now        func() time.Time
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(walletRepo ports.WalletRepository, log zerolog.Logger) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo: walletRepo,
		log:        log,
		now:        time.Now,
	}
}

// GetOrCreate returns the actor's wallet, creating it on first use. Concurrent first
// calls for the same actor all observe the single wallet that won the insert.
func (s *WalletServiceImpl) GetOrCreate(ctx context.Context, actor domain.ActorRef) (*domain.Wallet, error) {
	if actor.IsZero() {
		return nil, apperror.Validation("actor is required")
	}

	w, err := s.walletRepo.GetByOwner(ctx, actor)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if w != nil {
		return w, nil
	}

	fresh := domain.NewWallet(actor, s.now().UTC())
	created, err := s.walletRepo.Insert(ctx, fresh)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("insert wallet: %w", err))
	}
	if created {
		s.log.Info().
			Str("wallet_id", fresh.ID.String()).
			Str("actor", actor.String()).
			Msg("wallet created")
		return fresh, nil
	}

	// Lost the insert race; the winner's row is now visible.
	w, err = s.walletRepo.GetByOwner(ctx, actor)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("reload wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.InternalError(fmt.Errorf("wallet for %s vanished after insert conflict", actor))
	}
	return w, nil
}

// GetBalance returns the balances of an actor that already has a wallet.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, actor domain.ActorRef) (*domain.BalanceView, error) {
	w, err := s.walletRepo.GetByOwner(ctx, actor)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	view := w.View()
	return &view, nil
}

// SystemWallet returns the platform's singleton wallet.
func (s *WalletServiceImpl) SystemWallet(ctx context.Context) (*domain.Wallet, error) {
	return s.GetOrCreate(ctx, domain.System())
}

// SetActive activates or deactivates a wallet. Inactive wallets keep receiving money
// already in flight but refuse new deposits, withdrawals and holds.
func (s *WalletServiceImpl) SetActive(ctx context.Context, walletID uuid.UUID, active bool) error {
	w, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if w == nil {
		return apperror.ErrNotFound("wallet")
	}
	if w.IsActive == active {
		return nil
	}
	if err := s.walletRepo.SetActive(ctx, walletID, active); err != nil {
		return apperror.InternalError(fmt.Errorf("set wallet active: %w", err))
	}

	s.log.Info().
		Str("wallet_id", walletID.String()).
		Bool("active", active).
		Msg("wallet activation changed")
	return nil
}
