package ride

import (
	"slices"
	"strings"
	"time"
)

// Filter is the expected-state predicate of a conditional ride update or listing.
// Zero-valued fields do not constrain.
type Filter struct {
	ID                   string
	Statuses             []Status
	PassengerID          string
	DriverID             string
	Participant          string // passenger or driver
	RequireBothConfirmed bool
	Unconfirmed          Party // that party's start flag is still unset
}

// Matches evaluates the filter against a ride.
func (filter Filter) Matches(ride *Ride) bool {
	if ride == nil {
		return false
	}
	if filter.ID != "" && ride.ID != filter.ID {
		return false
	}
	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, ride.Status) {
		return false
	}
	if filter.PassengerID != "" && ride.PassengerID != filter.PassengerID {
		return false
	}
	if filter.DriverID != "" && ride.DriverIDValue() != filter.DriverID {
		return false
	}
	if filter.Participant != "" {
		if _, err := ride.PartyOf(filter.Participant); err != nil {
			return false
		}
	}
	if filter.RequireBothConfirmed && !ride.BothConfirmed() {
		return false
	}
	if filter.Unconfirmed != "" && ride.HasConfirmed(filter.Unconfirmed) {
		return false
	}
	return true
}

// Patch lists the fields a conditional update writes. Nil fields are left untouched.
type Patch struct {
	Status             *Status
	DriverID           *string
	Fare               *float64
	Vehicle            *VehicleSnapshot
	PassengerConfirmed *bool
	DriverConfirmed    *bool
	StartedAt          *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	CancelledBy        *Party
	CancellationReason *string
}

// Validate rejects patches that would break ride invariants regardless of the current row.
func (patch Patch) Validate() error {
	if patch.Status != nil && !patch.Status.Valid() {
		return ErrInvalidStatus
	}
	if patch.DriverID != nil && strings.TrimSpace(*patch.DriverID) == "" {
		return ErrCannotUnassignOnPatch
	}
	if patch.Fare != nil && *patch.Fare <= 0 {
		return ErrFareMustBePositive
	}
	return nil
}

// Apply writes the patch onto ride and stamps UpdatedAt.
func (patch Patch) Apply(ride *Ride, now time.Time) {
	if patch.Status != nil {
		ride.Status = *patch.Status
	}
	if patch.DriverID != nil {
		ride.DriverID = clonePtr(patch.DriverID)
	}
	if patch.Fare != nil {
		ride.Fare = clonePtr(patch.Fare)
	}
	if patch.Vehicle != nil {
		ride.Vehicle = clonePtr(patch.Vehicle)
	}
	if patch.PassengerConfirmed != nil {
		ride.PassengerConfirmed = *patch.PassengerConfirmed
	}
	if patch.DriverConfirmed != nil {
		ride.DriverConfirmed = *patch.DriverConfirmed
	}
	if patch.StartedAt != nil {
		ride.StartedAt = clonePtr(patch.StartedAt)
	}
	if patch.CompletedAt != nil {
		ride.CompletedAt = clonePtr(patch.CompletedAt)
	}
	if patch.CancelledAt != nil {
		ride.CancelledAt = clonePtr(patch.CancelledAt)
	}
	if patch.CancelledBy != nil {
		ride.CancelledBy = clonePtr(patch.CancelledBy)
	}
	if patch.CancellationReason != nil {
		ride.CancellationReason = clonePtr(patch.CancellationReason)
	}
	ride.UpdatedAt = now
}

// ----- transition builders -----

// AssignTransition moves REQUESTED -> ACCEPTED with driver, fare and vehicle snapshot.
func AssignTransition(rideID, driverID string, fare float64, vehicle VehicleSnapshot) (Filter, Patch, error) {
	if strings.TrimSpace(rideID) == "" {
		return Filter{}, Patch{}, ErrRideIDRequired
	}
	if strings.TrimSpace(driverID) == "" {
		return Filter{}, Patch{}, ErrDriverRequired
	}
	if fare <= 0 {
		return Filter{}, Patch{}, ErrFareMustBePositive
	}
	next := StatusAccepted
	return Filter{ID: rideID, Statuses: []Status{StatusRequested}},
		Patch{Status: &next, DriverID: &driverID, Fare: &fare, Vehicle: &vehicle},
		nil
}

// ConfirmTransition sets one party's start flag while the ride is ACCEPTED
// and that party has not confirmed yet.
func ConfirmTransition(rideID string, party Party) (Filter, Patch) {
	yes := true
	patch := Patch{}
	if party == PartyDriver {
		patch.DriverConfirmed = &yes
	} else {
		patch.PassengerConfirmed = &yes
	}
	return Filter{ID: rideID, Statuses: []Status{StatusAccepted}, Unconfirmed: party}, patch
}

// StartTransition moves ACCEPTED -> IN_PROGRESS once both flags are set.
func StartTransition(rideID string, at time.Time) (Filter, Patch) {
	next := StatusInProgress
	return Filter{ID: rideID, Statuses: []Status{StatusAccepted}, RequireBothConfirmed: true},
		Patch{Status: &next, StartedAt: &at}
}

// CompleteTransition moves IN_PROGRESS -> COMPLETED for the given driver.
func CompleteTransition(rideID, driverID string, at time.Time) (Filter, Patch) {
	next := StatusCompleted
	return Filter{ID: rideID, Statuses: []Status{StatusInProgress}, DriverID: driverID},
		Patch{Status: &next, CompletedAt: &at}
}

// CancelTransition moves REQUESTED|ACCEPTED -> CANCELLED.
func CancelTransition(rideID string, by Party, reason string, at time.Time) (Filter, Patch) {
	next := StatusCancelled
	patch := Patch{Status: &next, CancelledAt: &at, CancelledBy: &by}
	if reason = strings.TrimSpace(reason); reason != "" {
		patch.CancellationReason = &reason
	}
	return Filter{ID: rideID, Statuses: Cancellable()}, patch
}

// ValidateFilter ensures a listing filter is scoped.
func ValidateFilter(filter Filter) error {
	if filter.ID == "" && filter.PassengerID == "" && filter.DriverID == "" && filter.Participant == "" && len(filter.Statuses) == 0 {
		return ErrEmptyFilter
	}
	return nil
}
