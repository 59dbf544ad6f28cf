package handler

import (
	"delivery-wallet-engine/internal/adapter/http/dto"
	"delivery-wallet-engine/internal/adapter/http/middleware"
	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/pkg/apperror"
	"delivery-wallet-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler serves the authenticated actor's own wallet.
type WalletHandler struct {
	wallets  ports.WalletService
	ledger   ports.LedgerService
	payments ports.PaymentService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(wallets ports.WalletService, ledger ports.LedgerService, payments ports.PaymentService) *WalletHandler {
	return &WalletHandler{wallets: wallets, ledger: ledger, payments: payments}
}

// GetBalance handles GET /api/v1/wallet.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	view, err := h.wallets.GetBalance(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toBalanceResponse(view))
}

// CreateDeposit handles POST /api/v1/wallet/deposits.
func (h *WalletHandler) CreateDeposit(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.payments.InitiateDeposit(c.Request.Context(), ports.InitiateDepositRequest{
		Actor:       actor,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.DepositResponse{
		Transaction: toTransactionResponse(result.Transaction),
		PayURL:      result.Payment.PayURL,
		Deeplink:    result.Payment.Deeplink,
		QRCodeURL:   result.Payment.QRCodeURL,
	})
}

// CreateWithdrawal handles POST /api/v1/wallet/withdrawals.
func (h *WalletHandler) CreateWithdrawal(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := h.payments.RequestWithdrawal(c.Request.Context(), ports.WithdrawalRequest{
		Actor:  actor,
		Amount: req.Amount,
		Phone:  req.Phone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, toTransactionResponse(txn))
}

// ListTransactions handles GET /api/v1/wallet/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var q dto.ListTransactionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	view, err := h.wallets.GetBalance(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	params := ports.TransactionListParams{
		WalletID: view.WalletID,
		From:     q.From,
		To:       q.To,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if q.Status != "" {
		s := domain.TransactionStatus(q.Status)
		params.Status = &s
	}
	if q.Type != "" {
		t := domain.TransactionType(q.Type)
		params.Type = &t
	}
	params.Normalize()

	txns, total, err := h.ledger.History(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, toTransactionResponse(&txns[i]))
	}
	response.OK(c, dto.TransactionListResponse{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: int((total + int64(params.PageSize) - 1) / int64(params.PageSize)),
	})
}
