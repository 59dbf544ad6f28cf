package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeDeposit      TransactionType = "deposit"
	TransactionTypeWithdraw     TransactionType = "withdraw"
	TransactionTypeOrderPayment TransactionType = "order_payment"
	TransactionTypeOrderRevenue TransactionType = "order_revenue"
	TransactionTypeCommission   TransactionType = "commission"
	TransactionTypePlatformFee  TransactionType = "platform_fee"
	TransactionTypeRefund       TransactionType = "refund"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdraw, TransactionTypeOrderPayment,
		TransactionTypeOrderRevenue, TransactionTypeCommission, TransactionTypePlatformFee,
		TransactionTypeRefund:
		return true
	}
	return false
}

// IsDebit reports whether transactions of this type take money out of the wallet.
func (t TransactionType) IsDebit() bool {
	return t == TransactionTypeWithdraw || t == TransactionTypeOrderPayment
}

// IsDistribution reports whether the type is one of the post-delivery split legs.
func (t TransactionType) IsDistribution() bool {
	return t == TransactionTypeOrderRevenue || t == TransactionTypeCommission || t == TransactionTypePlatformFee
}

// SignedAmount returns amount with the sign convention of the type: debits are negative.
func (t TransactionType) SignedAmount(amount int64) int64 {
	if amount < 0 {
		amount = -amount
	}
	if t.IsDebit() {
		return -amount
	}
	return amount
}

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusEscrowed  TransactionStatus = "escrowed"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusEscrowed, TransactionStatusCompleted,
		TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if s is a final state.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted ||
		s == TransactionStatusFailed ||
		s == TransactionStatusCancelled
}

// CanTransition reports whether a transaction may move from s to next.
// pending -> completed|failed|cancelled, escrowed -> completed|cancelled.
func (s TransactionStatus) CanTransition(next TransactionStatus) bool {
	switch s {
	case TransactionStatusPending:
		return next.IsTerminal()
	case TransactionStatusEscrowed:
		return next == TransactionStatusCompleted || next == TransactionStatusCancelled
	}
	return false
}

// Transaction is a ledger entry. Amount is signed: positive credits, negative debits.
type Transaction struct {
	ID                    uuid.UUID         `json:"id"`
	WalletID              uuid.UUID         `json:"wallet_id"`
	Type                  TransactionType   `json:"type"`
	Amount                int64             `json:"amount"`
	Status                TransactionStatus `json:"status"`
	OrderID               *uuid.UUID        `json:"order_id,omitempty"`
	OrderCode             string            `json:"order_code,omitempty"`
	Provider              string            `json:"provider,omitempty"`
	ProviderTransactionID *string           `json:"provider_transaction_id,omitempty"`
	ProviderRequestID     *string           `json:"provider_request_id,omitempty"`
	ProviderPaymentURL    *string           `json:"provider_payment_url,omitempty"`
	Description           string            `json:"description,omitempty"`
	Metadata              json.RawMessage   `json:"metadata,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
	ProcessedAt           *time.Time        `json:"processed_at,omitempty"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// AbsAmount is the unsigned magnitude of the entry.
func (t *Transaction) AbsAmount() int64 {
	if t.Amount < 0 {
		return -t.Amount
	}
	return t.Amount
}

// MergeMetadata returns t.Metadata with the keys of extra set on top.
func (t *Transaction) MergeMetadata(extra map[string]any) (json.RawMessage, error) {
	m := map[string]any{}
	if len(t.Metadata) > 0 {
		if err := json.Unmarshal(t.Metadata, &m); err != nil {
			return nil, err
		}
	}
	for k, v := range extra {
		m[k] = v
	}
	return json.Marshal(m)
}
