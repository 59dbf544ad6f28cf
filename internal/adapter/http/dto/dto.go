package dto

import "time"

// ActorPayload names the wallet owner an internal order call acts on.
type ActorPayload struct {
	OwnerType string `json:"owner_type" binding:"required,oneof=customer restaurant driver admin system"`
	ActorID   string `json:"actor_id" binding:"omitempty,uuid"`
}

// HoldRequest is the body of POST /internal/v1/orders/:orderId/hold.
type HoldRequest struct {
	ActorPayload
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	OrderCode string `json:"order_code" binding:"omitempty,max=64,safe_id"`
}

// ReleaseRequest is the body of POST /internal/v1/orders/:orderId/release.
type ReleaseRequest struct {
	ActorPayload
	Amount int64 `json:"amount" binding:"gte=0"`
}

// RefundRequest is the body of POST /internal/v1/orders/:orderId/refund.
type RefundRequest struct {
	ActorPayload
}

// DistributeRequest is the body of POST /internal/v1/orders/:orderId/distribute.
type DistributeRequest struct {
	OrderCode        string  `json:"order_code" binding:"omitempty,max=64,safe_id"`
	RestaurantID     string  `json:"restaurant_id" binding:"required,uuid"`
	DriverID         *string `json:"driver_id,omitempty" binding:"omitempty,uuid"`
	RestaurantAmount int64   `json:"restaurant_amount" binding:"gte=0,lte=1000000000000"`
	DriverAmount     int64   `json:"driver_amount" binding:"gte=0,lte=1000000000000"`
	PlatformAmount   int64   `json:"platform_amount" binding:"gte=0,lte=1000000000000"`
}

// DepositRequest is the body of POST /api/v1/wallet/deposits.
type DepositRequest struct {
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Description string `json:"description" binding:"max=255"`
}

// WithdrawalRequest is the body of POST /api/v1/wallet/withdrawals.
type WithdrawalRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Phone  string `json:"phone" binding:"required,vn_phone"`
}

// UpdateStatusRequest is the body of PATCH /api/v1/admin/transactions/:id/status.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=completed failed cancelled"`
	Reason string `json:"reason" binding:"max=255"`
}

// ListTransactionsQuery holds filter + pagination query parameters.
type ListTransactionsQuery struct {
	Page     int        `form:"page" binding:"omitempty,min=1"`
	PageSize int        `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status   string     `form:"status" binding:"omitempty,oneof=pending escrowed completed failed cancelled"`
	Type     string     `form:"type" binding:"omitempty,oneof=deposit withdraw order_payment order_revenue commission platform_fee refund"`
	From     *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To       *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// TransactionResponse is the response body for a ledger entry.
type TransactionResponse struct {
	ID          string  `json:"id"`
	WalletID    string  `json:"wallet_id"`
	Type        string  `json:"type"`
	Amount      int64   `json:"amount"`
	Status      string  `json:"status"`
	OrderID     *string `json:"order_id,omitempty"`
	OrderCode   string  `json:"order_code,omitempty"`
	Provider    string  `json:"provider,omitempty"`
	PaymentURL  *string `json:"payment_url,omitempty"`
	Description string  `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at"`
	ProcessedAt *string `json:"processed_at,omitempty"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	WalletID         string `json:"wallet_id"`
	OwnerType        string `json:"owner_type"`
	Balance          int64  `json:"balance"`
	PendingBalance   int64  `json:"pending_balance"`
	EscrowBalance    int64  `json:"escrow_balance"`
	TotalDeposits    int64  `json:"total_deposits"`
	TotalWithdrawals int64  `json:"total_withdrawals"`
	IsActive         bool   `json:"is_active"`
	Currency         string `json:"currency"`
}

// DepositResponse tells the actor where to complete a pending deposit.
type DepositResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	PayURL      string              `json:"pay_url"`
	Deeplink    string              `json:"deeplink,omitempty"`
	QRCodeURL   string              `json:"qr_code_url,omitempty"`
}

// SettlementResponse reports the outcome of a release or refund. Applied is false
// when there was no escrowed payment left to settle.
type SettlementResponse struct {
	Applied     bool                 `json:"applied"`
	Transaction *TransactionResponse `json:"transaction,omitempty"`
}

// DistributionLegResponse is one credited (or failed) share of an order.
type DistributionLegResponse struct {
	Type           string               `json:"type"`
	Recipient      string               `json:"recipient"`
	Amount         int64                `json:"amount"`
	AlreadyApplied bool                 `json:"already_applied"`
	Transaction    *TransactionResponse `json:"transaction,omitempty"`
	ErrorCode      string               `json:"error_code,omitempty"`
}

// TransactionListResponse wraps paginated transaction list.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}
