package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// OwnerType identifies which kind of marketplace participant owns a wallet.
type OwnerType string

const (
	OwnerTypeCustomer   OwnerType = "customer"
	OwnerTypeRestaurant OwnerType = "restaurant"
	OwnerTypeDriver     OwnerType = "driver"
	OwnerTypeAdmin      OwnerType = "admin"
	OwnerTypeSystem     OwnerType = "system"
)

// Valid reports whether o is one of the known owner types.
func (o OwnerType) Valid() bool {
	switch o {
	case OwnerTypeCustomer, OwnerTypeRestaurant, OwnerTypeDriver, OwnerTypeAdmin, OwnerTypeSystem:
		return true
	}
	return false
}

// ActorRef identifies whose wallet an operation targets. Its fields are unexported so
// that only the constructors below can build one; each owner type carries exactly the
// identifier it needs and the system actor carries none.
type ActorRef struct {
	ownerType OwnerType
	ownerID   uuid.UUID
	userID    *uuid.UUID
}

func Customer(userID uuid.UUID) ActorRef {
	return ActorRef{ownerType: OwnerTypeCustomer, ownerID: userID}
}

func Restaurant(restaurantID uuid.UUID) ActorRef {
	return ActorRef{ownerType: OwnerTypeRestaurant, ownerID: restaurantID}
}

func Driver(driverID uuid.UUID) ActorRef {
	return ActorRef{ownerType: OwnerTypeDriver, ownerID: driverID}
}

func Admin(userID uuid.UUID) ActorRef {
	return ActorRef{ownerType: OwnerTypeAdmin, ownerID: userID}
}

// System is the platform's singleton actor.
func System() ActorRef {
	return ActorRef{ownerType: OwnerTypeSystem}
}

// WithUser annotates the actor with the human user acting on its behalf,
// e.g. the owner of a restaurant. It does not change wallet identity.
func (a ActorRef) WithUser(userID uuid.UUID) ActorRef {
	a.userID = &userID
	return a
}

func (a ActorRef) OwnerType() OwnerType { return a.ownerType }

// OwnerID is the customer/admin user id, restaurant id or driver id. uuid.Nil for System.
func (a ActorRef) OwnerID() uuid.UUID { return a.ownerID }

// ActingUser returns the annotated user, if any.
func (a ActorRef) ActingUser() (uuid.UUID, bool) {
	if a.userID == nil {
		return uuid.Nil, false
	}
	return *a.userID, true
}

// IsZero reports whether a was never constructed.
func (a ActorRef) IsZero() bool { return a.ownerType == "" }

func (a ActorRef) String() string {
	if a.ownerType == OwnerTypeSystem {
		return string(OwnerTypeSystem)
	}
	return string(a.ownerType) + ":" + a.ownerID.String()
}

// ParseActor builds an ActorRef from its wire form.
func ParseActor(ownerType, ownerID string) (ActorRef, error) {
	ot := OwnerType(ownerType)
	if !ot.Valid() {
		return ActorRef{}, fmt.Errorf("unknown owner type %q", ownerType)
	}
	if ot == OwnerTypeSystem {
		return System(), nil
	}
	id, err := uuid.Parse(ownerID)
	if err != nil {
		return ActorRef{}, fmt.Errorf("invalid %s id: %w", ot, err)
	}
	if id == uuid.Nil {
		return ActorRef{}, fmt.Errorf("%s id must not be nil", ot)
	}
	switch ot {
	case OwnerTypeCustomer:
		return Customer(id), nil
	case OwnerTypeRestaurant:
		return Restaurant(id), nil
	case OwnerTypeDriver:
		return Driver(id), nil
	default:
		return Admin(id), nil
	}
}
