package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MaxSplitAmount caps a single distribution leg, in minor units.
const MaxSplitAmount int64 = 1_000_000_000_000

// OrderEarnings describes how a delivered order's proceeds are split.
type OrderEarnings struct {
	OrderID          uuid.UUID  `json:"order_id"`
	OrderCode        string     `json:"order_code"`
	RestaurantID     uuid.UUID  `json:"restaurant_id"`
	DriverID         *uuid.UUID `json:"driver_id,omitempty"`
	RestaurantAmount int64      `json:"restaurant_amount"`
	DriverAmount     int64      `json:"driver_amount"`
	PlatformAmount   int64      `json:"platform_amount"`
}

func (e OrderEarnings) Validate() error {
	if e.OrderID == uuid.Nil {
		return errors.New("order id is required")
	}
	if e.RestaurantID == uuid.Nil {
		return errors.New("restaurant id is required")
	}
	if e.RestaurantAmount < 0 || e.DriverAmount < 0 || e.PlatformAmount < 0 {
		return errors.New("split amounts must not be negative")
	}
	if e.RestaurantAmount > MaxSplitAmount || e.DriverAmount > MaxSplitAmount || e.PlatformAmount > MaxSplitAmount {
		return fmt.Errorf("split amounts must not exceed %d", MaxSplitAmount)
	}
	return nil
}

// DistributionLeg is the outcome of crediting one recipient.
type DistributionLeg struct {
	Type           TransactionType `json:"type"`
	Recipient      string          `json:"recipient"`
	Amount         int64           `json:"amount"`
	Transaction    *Transaction    `json:"transaction,omitempty"`
	AlreadyApplied bool            `json:"already_applied"`
	Err            error           `json:"-"`
}

// Succeeded reports whether the recipient holds the credit.
func (l DistributionLeg) Succeeded() bool {
	return l.Err == nil && l.Transaction != nil
}
