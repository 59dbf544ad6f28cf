package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository over a Store.
type TransactionRepo struct {
	s *Store
}

// Create enforces the same uniqueness rules as the Postgres partial indexes.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.checkTx(tx); err != nil {
		return err
	}
	if _, ok := r.s.wallets[t.WalletID]; !ok {
		return notFound("wallet", t.WalletID)
	}
	if _, ok := r.s.txns[t.ID]; ok {
		return ports.ErrConflict
	}
	for _, existing := range r.s.txns {
		if conflicts(existing, t) {
			return ports.ErrConflict
		}
	}

	r.s.txns[t.ID] = copyTransaction(t)
	r.s.seq = append(r.s.seq, t.ID)
	id := t.ID
	r.s.record(func() {
		delete(r.s.txns, id)
		r.s.seq = r.s.seq[:len(r.s.seq)-1]
	})
	return nil
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if t, ok := r.s.txns[id]; ok {
		return copyTransaction(t), nil
	}
	return nil, nil
}

func (r *TransactionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if err := r.s.checkTx(tx); err != nil {
		return nil, err
	}
	if t, ok := r.s.txns[id]; ok {
		return copyTransaction(t), nil
	}
	return nil, nil
}

func (r *TransactionRepo) FindOrderPayment(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, statuses ...domain.TransactionStatus) (*domain.Transaction, error) {
	return r.findLatest(tx, func(t *domain.Transaction) bool {
		return t.Type == domain.TransactionTypeOrderPayment && sameOrder(t, orderID) &&
			slices.Contains(statuses, t.Status)
	})
}

func (r *TransactionRepo) FindCompletedDeposit(ctx context.Context, tx pgx.Tx, provider, providerTxID string) (*domain.Transaction, error) {
	return r.findLatest(tx, func(t *domain.Transaction) bool {
		return t.Type == domain.TransactionTypeDeposit && t.Status == domain.TransactionStatusCompleted &&
			t.Provider == provider && t.ProviderTransactionID != nil && *t.ProviderTransactionID == providerTxID
	})
}

func (r *TransactionRepo) FindByOrderAndType(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, txType domain.TransactionType) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if err := r.s.checkTx(tx); err != nil {
		return nil, err
	}
	for _, id := range r.s.seq {
		if t := r.s.txns[id]; t.Type == txType && sameOrder(t, orderID) {
			return copyTransaction(t), nil
		}
	}
	return nil, nil
}

func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, upd ports.StatusUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.checkTx(tx); err != nil {
		return err
	}
	t, ok := r.s.txns[id]
	if !ok {
		return notFound("transaction", id)
	}

	next := copyTransaction(t)
	next.Status = upd.Status
	if upd.ProviderTransactionID != nil {
		next.ProviderTransactionID = upd.ProviderTransactionID
	}
	if upd.Metadata != nil {
		next.Metadata = upd.Metadata
	}
	if upd.ProcessedAt != nil {
		next.ProcessedAt = upd.ProcessedAt
	}
	next.UpdatedAt = r.s.now()

	for otherID, other := range r.s.txns {
		if otherID != id && conflicts(other, next) {
			return ports.ErrConflict
		}
	}

	prev := t
	r.s.record(func() { r.s.txns[id] = prev })
	r.s.txns[id] = next
	return nil
}

func (r *TransactionRepo) SetPaymentURL(ctx context.Context, id uuid.UUID, url, requestID string) error {
	r.s.unit.Lock()
	defer r.s.unit.Unlock()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.txns[id]
	if !ok {
		return notFound("transaction", id)
	}
	t.ProviderPaymentURL = &url
	t.ProviderRequestID = &requestID
	t.UpdatedAt = r.s.now()
	return nil
}

func (r *TransactionRepo) ListStale(ctx context.Context, txType domain.TransactionType, status domain.TransactionStatus, before time.Time, limit int) ([]domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Transaction
	for _, id := range r.s.seq {
		t := r.s.txns[id]
		if t.Type == txType && t.Status == status && t.CreatedAt.Before(before) {
			out = append(out, *copyTransaction(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	params.Normalize()

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []domain.Transaction
	for i := len(r.s.seq) - 1; i >= 0; i-- {
		t := r.s.txns[r.s.seq[i]]
		if t.WalletID != params.WalletID {
			continue
		}
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		if params.Type != nil && t.Type != *params.Type {
			continue
		}
		if params.OrderID != nil && !sameOrder(t, *params.OrderID) {
			continue
		}
		if params.From != nil && t.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && t.CreatedAt.After(*params.To) {
			continue
		}
		matched = append(matched, *copyTransaction(t))
	}

	total := int64(len(matched))
	start := params.Offset()
	if start >= len(matched) {
		return nil, total, nil
	}
	end := min(start+params.PageSize, len(matched))
	return matched[start:end], total, nil
}

func (r *TransactionRepo) findLatest(tx pgx.Tx, match func(*domain.Transaction) bool) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if err := r.s.checkTx(tx); err != nil {
		return nil, err
	}
	for i := len(r.s.seq) - 1; i >= 0; i-- {
		if t := r.s.txns[r.s.seq[i]]; match(t) {
			return copyTransaction(t), nil
		}
	}
	return nil, nil
}

// conflicts mirrors the partial unique indexes on the transactions table.
func conflicts(a, b *domain.Transaction) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case domain.TransactionTypeOrderPayment:
		held := func(s domain.TransactionStatus) bool {
			return s == domain.TransactionStatusEscrowed || s == domain.TransactionStatusCompleted
		}
		return a.OrderID != nil && b.OrderID != nil && *a.OrderID == *b.OrderID && held(a.Status) && held(b.Status)
	case domain.TransactionTypeDeposit:
		return a.Status == domain.TransactionStatusCompleted && b.Status == domain.TransactionStatusCompleted &&
			a.Provider == b.Provider &&
			a.ProviderTransactionID != nil && b.ProviderTransactionID != nil &&
			*a.ProviderTransactionID == *b.ProviderTransactionID
	case domain.TransactionTypeOrderRevenue, domain.TransactionTypeCommission, domain.TransactionTypePlatformFee:
		return a.OrderID != nil && b.OrderID != nil && *a.OrderID == *b.OrderID
	}
	return false
}

func sameOrder(t *domain.Transaction, orderID uuid.UUID) bool {
	return t.OrderID != nil && *t.OrderID == orderID
}
