package handler

import (
	"net/http"

	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// CallbackHandler receives the payment provider's IPN.
type CallbackHandler struct {
	payments ports.PaymentService
	log      zerolog.Logger
}

func NewCallbackHandler(payments ports.PaymentService, log zerolog.Logger) *CallbackHandler {
	return &CallbackHandler{payments: payments, log: log}
}

// MoMoIPN handles POST /api/v1/payments/momo/ipn. It always answers 204 so the
// provider learns nothing about internal state; outcomes are logged instead.
func (h *CallbackHandler) MoMoIPN(c *gin.Context) {
	defer c.Status(http.StatusNoContent)

	var cb domain.ProviderCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		h.log.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("malformed provider callback")
		return
	}

	if err := h.payments.HandleCallback(c.Request.Context(), cb); err != nil {
		event := h.log.Warn()
		if apperror.IsCode(err, apperror.CodeInternal) {
			event = h.log.Error()
		}
		event.Err(err).
			Str("order_ref", cb.OrderID).
			Int64("trans_id", cb.TransID).
			Int("result_code", cb.ResultCode).
			Msg("provider callback not applied")
	}
}
