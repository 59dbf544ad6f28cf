package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Wallet holds one actor's balances in VND (smallest unit, no decimals).
type Wallet struct {
	ID               uuid.UUID  `json:"id"`
	OwnerType        OwnerType  `json:"owner_type"`
	UserID           *uuid.UUID `json:"user_id,omitempty"`
	RestaurantID     *uuid.UUID `json:"restaurant_id,omitempty"`
	DriverID         *uuid.UUID `json:"driver_id,omitempty"`
	Balance          int64      `json:"balance"`
	PendingBalance   int64      `json:"pending_balance"`
	EscrowBalance    int64      `json:"escrow_balance"`
	TotalDeposits    int64      `json:"total_deposits"`
	TotalWithdrawals int64      `json:"total_withdrawals"`
	IsActive         bool       `json:"is_active"`
	IsSystemWallet   bool       `json:"is_system_wallet"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewWallet builds a fresh, active, zero-balance wallet for actor.
func NewWallet(actor ActorRef, now time.Time) *Wallet {
	w := &Wallet{
		ID:        uuid.New(),
		OwnerType: actor.OwnerType(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id := actor.OwnerID()
	switch actor.OwnerType() {
	case OwnerTypeCustomer, OwnerTypeAdmin:
		w.UserID = &id
	case OwnerTypeRestaurant:
		w.RestaurantID = &id
	case OwnerTypeDriver:
		w.DriverID = &id
	case OwnerTypeSystem:
		w.IsSystemWallet = true
	}
	return w
}

// BelongsTo reports whether the wallet is the one actor resolves to.
func (w *Wallet) BelongsTo(actor ActorRef) bool {
	if w.OwnerType != actor.OwnerType() {
		return false
	}
	id := actor.OwnerID()
	switch w.OwnerType {
	case OwnerTypeCustomer, OwnerTypeAdmin:
		return w.UserID != nil && *w.UserID == id
	case OwnerTypeRestaurant:
		return w.RestaurantID != nil && *w.RestaurantID == id
	case OwnerTypeDriver:
		return w.DriverID != nil && *w.DriverID == id
	default:
		return w.IsSystemWallet
	}
}

// BalanceDelta is a set of increments applied to a wallet in one atomic unit.
type BalanceDelta struct {
	Balance          int64
	PendingBalance   int64
	EscrowBalance    int64
	TotalDeposits    int64
	TotalWithdrawals int64
}

var (
	ErrNegativeBalance  = errors.New("balance would become negative")
	ErrTotalsDecreasing = errors.New("lifetime totals cannot decrease")
	ErrBalanceOverflow  = errors.New("balance would exceed the int64 range")
)

// IsZero reports whether applying d would change nothing.
func (d BalanceDelta) IsZero() bool {
	return d == BalanceDelta{}
}

// Validate checks the parts of d that do not depend on the current wallet state.
func (d BalanceDelta) Validate() error {
	if d.TotalDeposits < 0 || d.TotalWithdrawals < 0 {
		return ErrTotalsDecreasing
	}
	return nil
}

// Apply returns the wallet state after d, refusing any result with a negative or
// wrapped-around balance.
func (w *Wallet) Apply(d BalanceDelta) (Wallet, error) {
	if err := d.Validate(); err != nil {
		return Wallet{}, err
	}
	next := *w
	var ok [5]bool
	next.Balance, ok[0] = addAmount(w.Balance, d.Balance)
	next.PendingBalance, ok[1] = addAmount(w.PendingBalance, d.PendingBalance)
	next.EscrowBalance, ok[2] = addAmount(w.EscrowBalance, d.EscrowBalance)
	next.TotalDeposits, ok[3] = addAmount(w.TotalDeposits, d.TotalDeposits)
	next.TotalWithdrawals, ok[4] = addAmount(w.TotalWithdrawals, d.TotalWithdrawals)
	for _, fits := range ok {
		if !fits {
			return Wallet{}, ErrBalanceOverflow
		}
	}
	if next.Balance < 0 || next.PendingBalance < 0 || next.EscrowBalance < 0 {
		return Wallet{}, ErrNegativeBalance
	}
	return next, nil
}

// addAmount adds two minor-unit amounts and reports false when the sum wraps.
func addAmount(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// BalanceView is the read-only projection returned to callers.
type BalanceView struct {
	WalletID         uuid.UUID `json:"wallet_id"`
	OwnerType        OwnerType `json:"owner_type"`
	Balance          int64     `json:"balance"`
	PendingBalance   int64     `json:"pending_balance"`
	EscrowBalance    int64     `json:"escrow_balance"`
	TotalDeposits    int64     `json:"total_deposits"`
	TotalWithdrawals int64     `json:"total_withdrawals"`
	IsActive         bool      `json:"is_active"`
}

func (w *Wallet) View() BalanceView {
	return BalanceView{
		WalletID:         w.ID,
		OwnerType:        w.OwnerType,
		Balance:          w.Balance,
		PendingBalance:   w.PendingBalance,
		EscrowBalance:    w.EscrowBalance,
		TotalDeposits:    w.TotalDeposits,
		TotalWithdrawals: w.TotalWithdrawals,
		IsActive:         w.IsActive,
	}
}
