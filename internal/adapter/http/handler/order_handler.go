package handler

import (
	"net/http"

	"delivery-wallet-engine/internal/adapter/http/dto"
	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/pkg/apperror"
	"delivery-wallet-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderHandler receives order lifecycle signals from the order subsystem.
type OrderHandler struct {
	escrow       ports.EscrowService
	distribution ports.DistributionService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(escrow ports.EscrowService, distribution ports.DistributionService) *OrderHandler {
	return &OrderHandler{escrow: escrow, distribution: distribution}
}

// Hold handles POST /internal/v1/orders/:orderId/hold.
func (h *OrderHandler) Hold(c *gin.Context) {
	orderID, err := uuidParam(c, "orderId")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.HoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	actor, err := parseActor(req.ActorPayload)
	if err != nil {
		response.Error(c, err)
		return
	}

	txn, err := h.escrow.Hold(c.Request.Context(), ports.HoldRequest{
		Actor:     actor,
		Amount:    req.Amount,
		OrderID:   orderID,
		OrderCode: req.OrderCode,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toTransactionResponse(txn))
}

// Release handles POST /internal/v1/orders/:orderId/release.
func (h *OrderHandler) Release(c *gin.Context) {
	orderID, err := uuidParam(c, "orderId")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	actor, err := parseActor(req.ActorPayload)
	if err != nil {
		response.Error(c, err)
		return
	}

	txn, err := h.escrow.Release(c.Request.Context(), actor, orderID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.SettlementResponse{Applied: txn != nil, Transaction: toTransactionResponsePtr(txn)})
}

// Refund handles POST /internal/v1/orders/:orderId/refund.
func (h *OrderHandler) Refund(c *gin.Context) {
	orderID, err := uuidParam(c, "orderId")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	actor, err := parseActor(req.ActorPayload)
	if err != nil {
		response.Error(c, err)
		return
	}

	txn, err := h.escrow.Refund(c.Request.Context(), actor, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.SettlementResponse{Applied: txn != nil, Transaction: toTransactionResponsePtr(txn)})
}

// Distribute handles POST /internal/v1/orders/:orderId/distribute. When some legs
// fail the response carries every leg's outcome; the call is safe to repeat.
func (h *OrderHandler) Distribute(c *gin.Context) {
	orderID, err := uuidParam(c, "orderId")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.DistributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	earnings := domain.OrderEarnings{
		OrderID:          orderID,
		OrderCode:        req.OrderCode,
		RestaurantID:     uuid.MustParse(req.RestaurantID),
		RestaurantAmount: req.RestaurantAmount,
		DriverAmount:     req.DriverAmount,
		PlatformAmount:   req.PlatformAmount,
	}
	if req.DriverID != nil {
		driverID := uuid.MustParse(*req.DriverID)
		earnings.DriverID = &driverID
	}

	legs, err := h.distribution.DistributeOrderEarnings(c.Request.Context(), earnings)
	if err != nil {
		if legs == nil {
			response.Error(c, err)
			return
		}
		response.Error(c, apperror.Wrap(apperror.CodeInternal, "Some distribution legs failed",
			http.StatusInternalServerError, err).WithDetail("legs", toLegResponses(legs)))
		return
	}
	response.OK(c, toLegResponses(legs))
}

func parseActor(p dto.ActorPayload) (domain.ActorRef, error) {
	actor, err := domain.ParseActor(p.OwnerType, p.ActorID)
	if err != nil {
		return domain.ActorRef{}, apperror.Validation(err.Error())
	}
	return actor, nil
}
