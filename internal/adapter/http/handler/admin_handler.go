package handler

import (
	"net/http"

	"delivery-wallet-engine/internal/adapter/http/dto"
	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/pkg/apperror"
	"delivery-wallet-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes manual ledger operations to platform administrators.
type AdminHandler struct {
	wallets ports.WalletService
	ledger  ports.LedgerService
}

func NewAdminHandler(wallets ports.WalletService, ledger ports.LedgerService) *AdminHandler {
	return &AdminHandler{wallets: wallets, ledger: ledger}
}

// GetTransaction handles GET /api/v1/admin/transactions/:id.
func (h *AdminHandler) GetTransaction(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	txn, err := h.ledger.GetTransaction(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toTransactionResponse(txn))
}

// UpdateTransactionStatus handles PATCH /api/v1/admin/transactions/:id/status.
func (h *AdminHandler) UpdateTransactionStatus(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	txn, err := h.ledger.UpdateStatus(c.Request.Context(), id, domain.TransactionStatus(req.Status), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toTransactionResponse(txn))
}

// DeactivateWallet handles POST /api/v1/admin/wallets/:walletId/deactivate.
func (h *AdminHandler) DeactivateWallet(c *gin.Context) {
	h.setActive(c, false)
}

// ActivateWallet handles POST /api/v1/admin/wallets/:walletId/activate.
func (h *AdminHandler) ActivateWallet(c *gin.Context) {
	h.setActive(c, true)
}

func (h *AdminHandler) setActive(c *gin.Context, active bool) {
	id, err := uuidParam(c, "walletId")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.wallets.SetActive(c.Request.Context(), id, active); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
