package handler

import (
	"errors"
	"time"

	"delivery-wallet-engine/internal/adapter/http/dto"
	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const currency = "VND"

func toTransactionResponse(tx *domain.Transaction) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:          tx.ID.String(),
		WalletID:    tx.WalletID.String(),
		Type:        string(tx.Type),
		Amount:      tx.Amount,
		Status:      string(tx.Status),
		OrderCode:   tx.OrderCode,
		Provider:    tx.Provider,
		PaymentURL:  tx.ProviderPaymentURL,
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.OrderID != nil {
		s := tx.OrderID.String()
		resp.OrderID = &s
	}
	if tx.ProcessedAt != nil {
		s := tx.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &s
	}
	return resp
}

func toTransactionResponsePtr(tx *domain.Transaction) *dto.TransactionResponse {
	if tx == nil {
		return nil
	}
	resp := toTransactionResponse(tx)
	return &resp
}

func toBalanceResponse(v *domain.BalanceView) dto.BalanceResponse {
	return dto.BalanceResponse{
		WalletID:         v.WalletID.String(),
		OwnerType:        string(v.OwnerType),
		Balance:          v.Balance,
		PendingBalance:   v.PendingBalance,
		EscrowBalance:    v.EscrowBalance,
		TotalDeposits:    v.TotalDeposits,
		TotalWithdrawals: v.TotalWithdrawals,
		IsActive:         v.IsActive,
		Currency:         currency,
	}
}

func toLegResponses(legs []domain.DistributionLeg) []dto.DistributionLegResponse {
	out := make([]dto.DistributionLegResponse, 0, len(legs))
	for _, leg := range legs {
		r := dto.DistributionLegResponse{
			Type:           string(leg.Type),
			Recipient:      leg.Recipient,
			Amount:         leg.Amount,
			AlreadyApplied: leg.AlreadyApplied,
			Transaction:    toTransactionResponsePtr(leg.Transaction),
		}
		if leg.Err != nil {
			r.ErrorCode = apperror.CodeInternal
			var appErr *apperror.AppError
			if errors.As(leg.Err, &appErr) {
				r.ErrorCode = appErr.Code
			}
		}
		out = append(out, r)
	}
	return out
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid " + name)
	}
	return id, nil
}
