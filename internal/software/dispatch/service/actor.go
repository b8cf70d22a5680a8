package service

import (
	"strings"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/contracts"
)

// Actor is the authenticated sender of an inbound event.
type Actor struct {
	ID            string
	Role          user.Role
	VehicleTypeID string
	Handle        string // connection handle
}

func (actor Actor) requirePassenger() error {
	if !actor.Role.IsPassenger() {
		return apperr.Forbidden("only passengers can do this")
	}
	return nil
}

func (actor Actor) requireDriver() error {
	if !actor.Role.IsDriver() {
		return apperr.Forbidden("only drivers can do this")
	}
	return nil
}

// Policy selects the drivers notified about a new ride request.
type Policy interface {
	policy()
}

// Broadcast notifies every online driver of the vehicle type within RadiusKM of the pickup.
type Broadcast struct {
	RadiusKM float64
}

// Targeted notifies only DriverID, and only while that driver is online.
type Targeted struct {
	DriverID string
}

func (Broadcast) policy() {}
func (Targeted) policy()  {}

// PolicyFor derives the dispatch policy of a requestRide payload.
func PolicyFor(in contracts.RequestRidePayload) Policy {
	if driverID := strings.TrimSpace(in.DriverID); driverID != "" {
		return Targeted{DriverID: driverID}
	}
	return Broadcast{RadiusKM: in.RadiusKM}
}
