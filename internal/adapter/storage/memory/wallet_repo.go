package memory

import (
	"context"

	"delivery-wallet-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository over a Store.
type WalletRepo struct {
	s *Store
}

// Insert stores w unless its owner already has a wallet.
func (r *WalletRepo) Insert(ctx context.Context, w *domain.Wallet) (bool, error) {
	r.s.unit.Lock()
	defer r.s.unit.Unlock()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.wallets {
		if sameOwner(existing, w) {
			return false, nil
		}
	}
	r.s.wallets[w.ID] = copyWallet(w)
	return true, nil
}

func (r *WalletRepo) GetByOwner(ctx context.Context, actor domain.ActorRef) (*domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, w := range r.s.wallets {
		if w.BelongsTo(actor) {
			return copyWallet(w), nil
		}
	}
	return nil, nil
}

func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if w, ok := r.s.wallets[id]; ok {
		return copyWallet(w), nil
	}
	return nil, nil
}

// GetByIDForUpdate reads inside a unit; the unit mutex already excludes other writers.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if err := r.s.checkTx(tx); err != nil {
		return nil, err
	}
	if w, ok := r.s.wallets[id]; ok {
		return copyWallet(w), nil
	}
	return nil, nil
}

func (r *WalletRepo) ApplyDelta(ctx context.Context, tx pgx.Tx, id uuid.UUID, d domain.BalanceDelta) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.checkTx(tx); err != nil {
		return nil, err
	}
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, notFound("wallet", id)
	}
	next, err := w.Apply(d)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = r.s.now()

	prev := copyWallet(w)
	r.s.record(func() { r.s.wallets[id] = prev })
	r.s.wallets[id] = &next
	return copyWallet(&next), nil
}

func (r *WalletRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	r.s.unit.Lock()
	defer r.s.unit.Unlock()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	w, ok := r.s.wallets[id]
	if !ok {
		return notFound("wallet", id)
	}
	w.IsActive = active
	w.UpdatedAt = r.s.now()
	return nil
}

func sameOwner(a, b *domain.Wallet) bool {
	if a.OwnerType != b.OwnerType {
		return false
	}
	switch {
	case a.IsSystemWallet || b.IsSystemWallet:
		return a.IsSystemWallet && b.IsSystemWallet
	case a.UserID != nil && b.UserID != nil:
		return *a.UserID == *b.UserID
	case a.RestaurantID != nil && b.RestaurantID != nil:
		return *a.RestaurantID == *b.RestaurantID
	case a.DriverID != nil && b.DriverID != nil:
		return *a.DriverID == *b.DriverID
	}
	return false
}
