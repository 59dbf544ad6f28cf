package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string         `json:"error_code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// WithDetail returns the error with an extra client-visible detail attached.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Error codes used by the ledger. Kept as constants so callers can branch with IsCode.
const (
	CodeInsufficientFunds     = "PAY_001"
	CodeValidation            = "PAY_002"
	CodeDuplicateCallback     = "PAY_003"
	CodeNotFound              = "PAY_004"
	CodeDuplicateOrderPayment = "PAY_008"
	CodeInvalidTransition     = "PAY_009"
	CodeWalletInactive        = "PAY_010"
	CodeInvalidSignature      = "SEC_002"
	CodeInternal              = "SYS_001"
	CodeProviderUnavailable   = "SYS_004"
)

// IsCode reports whether err (or anything it wraps) is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Shortfall extracts the missing amount from an insufficient-funds error.
func Shortfall(err error) (int64, bool) {
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != CodeInsufficientFunds {
		return 0, false
	}
	v, ok := appErr.Details["shortfall"].(int64)
	return v, ok
}

// ---- Security & Authentication (SEC) ----

func ErrInvalidAccessKey() *AppError {
	return New("SEC_001", "Invalid access key", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New(CodeInvalidSignature, "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_003", "Request timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("SEC_004", "Nonce has already been used", http.StatusForbidden)
}

// ErrProviderVerification is returned for provider callbacks whose signature does not verify.
func ErrProviderVerification() *AppError {
	return New(CodeInvalidSignature, "Provider callback verification failed", http.StatusUnauthorized)
}

// ---- Wallet & Ledger Business Logic (PAY) ----

// ErrInsufficientFunds reports how much the wallet is short by.
func ErrInsufficientFunds(shortfall int64) *AppError {
	return New(CodeInsufficientFunds,
		fmt.Sprintf("Insufficient balance in wallet, short by %d", shortfall),
		http.StatusPaymentRequired).WithDetail("shortfall", shortfall)
}

func ErrInvalidAmount() *AppError {
	return New(CodeValidation, "Invalid amount", http.StatusBadRequest)
}

// ErrDuplicateCallback means a completed deposit already carries this provider transaction id.
func ErrDuplicateCallback() *AppError {
	return New(CodeDuplicateCallback, "Provider transaction already applied", http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrDuplicateOrderPayment() *AppError {
	return New(CodeDuplicateOrderPayment, "Order has already been paid", http.StatusConflict)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New(CodeInvalidTransition,
		fmt.Sprintf("Transition from %s to %s is not allowed", from, to),
		http.StatusConflict)
}

func ErrWalletInactive() *AppError {
	return New(CodeWalletInactive, "Wallet is inactive", http.StatusForbidden)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("AUTH_005", "Operation not permitted for this actor", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(CodeInternal, "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

func ErrProviderUnavailable(err error) *AppError {
	return Wrap(CodeProviderUnavailable, "Payment provider unavailable", http.StatusBadGateway, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a PAY_002-style validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}
