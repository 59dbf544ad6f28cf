package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"encoding/json"
	"time"

	"delivery-wallet-engine/internal/core/domain"

	"github.com/google/uuid"
)

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
	// BuildSortedQuery joins fields as key=value pairs ordered by key, separated by '&'.
	BuildSortedQuery(fields map[string]string) string
}

// TokenService validates actor tokens issued by the upstream auth service.
type TokenService interface {
	Generate(actor domain.ActorRef, ttl time.Duration) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Actor     domain.ActorRef
	ExpiresAt time.Time
}

// CallbackCache remembers provider callbacks that were already applied (fast path only).
type CallbackCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil when absent
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error)
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// PaymentProvider is the external e-wallet the platform collects deposits through.
type PaymentProvider interface {
	Name() string
	CreatePaymentURL(ctx context.Context, req domain.PaymentURLRequest) (*domain.PaymentURL, error)
	VerifyCallback(cb domain.ProviderCallback) bool
}

// --- Service Ports (Business Logic) ---

// WalletService resolves actors to wallets.
type WalletService interface {
	GetOrCreate(ctx context.Context, actor domain.ActorRef) (*domain.Wallet, error)
	GetBalance(ctx context.Context, actor domain.ActorRef) (*domain.BalanceView, error)
	SetActive(ctx context.Context, walletID uuid.UUID, active bool) error
}

// LedgerService records deposits and withdrawals and drives their status transitions.
type LedgerService interface {
	RecordDeposit(ctx context.Context, req DepositRecord) (*domain.Transaction, error)
	ConfirmDeposit(ctx context.Context, txID uuid.UUID, providerTxID string, payload json.RawMessage) (*domain.Transaction, error)
	FailOrCancelDeposit(ctx context.Context, txID uuid.UUID, status domain.TransactionStatus, reason string) (*domain.Transaction, error)
	// CancelExpiredDeposit reports false when the deposit had already settled.
	CancelExpiredDeposit(ctx context.Context, txID uuid.UUID, reason string) (bool, error)
	RecordWithdrawal(ctx context.Context, req WithdrawalRecord) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, txID uuid.UUID, status domain.TransactionStatus, reason string) (*domain.Transaction, error)
	AttachPaymentURL(ctx context.Context, txID uuid.UUID, url, requestID string) error
	GetTransaction(ctx context.Context, txID uuid.UUID) (*domain.Transaction, error)
	History(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// DepositRecord holds validated input for a new pending deposit.
type DepositRecord struct {
	WalletID    uuid.UUID
	Amount      int64
	Provider    string
	OrderID     *uuid.UUID
	Description string
}

// WithdrawalRecord holds validated input for a withdrawal.
type WithdrawalRecord struct {
	WalletID    uuid.UUID
	Amount      int64
	Provider    string
	Phone       string
	Description string
}

// EscrowService holds order payments until the order is delivered or cancelled.
type EscrowService interface {
	Hold(ctx context.Context, req HoldRequest) (*domain.Transaction, error)
	// Release returns nil, nil when there is nothing escrowed for the order.
	Release(ctx context.Context, actor domain.ActorRef, orderID uuid.UUID, amount int64) (*domain.Transaction, error)
	// Refund returns nil, nil when there is nothing escrowed for the order.
	Refund(ctx context.Context, actor domain.ActorRef, orderID uuid.UUID) (*domain.Transaction, error)
}

// HoldRequest holds validated input for an escrow hold.
type HoldRequest struct {
	Actor     domain.ActorRef
	Amount    int64
	OrderID   uuid.UUID
	OrderCode string
}

// DistributionService credits the parties of a delivered order.
type DistributionService interface {
	DistributeOrderEarnings(ctx context.Context, earnings domain.OrderEarnings) ([]domain.DistributionLeg, error)
}

// PaymentService orchestrates provider-backed deposits and withdrawals for an actor.
type PaymentService interface {
	InitiateDeposit(ctx context.Context, req InitiateDepositRequest) (*DepositResult, error)
	HandleCallback(ctx context.Context, cb domain.ProviderCallback) error
	RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*domain.Transaction, error)
}

// InitiateDepositRequest holds input for an actor-initiated top-up.
type InitiateDepositRequest struct {
	Actor       domain.ActorRef
	Amount      int64
	Description string
}

// DepositResult pairs the pending deposit with where the actor should pay it.
type DepositResult struct {
	Transaction *domain.Transaction
	Payment     *domain.PaymentURL
}

// WithdrawalRequest holds input for an actor-initiated cash-out.
type WithdrawalRequest struct {
	Actor  domain.ActorRef
	Amount int64
	Phone  string
}
