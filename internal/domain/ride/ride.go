package ride

import (
	"errors"
	"strings"
	"time"

	"ride-dispatch/internal/domain/geo"
)

// Ride is the domain entity corresponding to the `rides` table.
type Ride struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Actors
	PassengerID string
	DriverID    *string // nil until assigned

	// Core state
	Status        Status
	VehicleTypeID string

	// Route
	Pickup     geo.Point
	Dropoff    geo.Point
	DistanceKM *float64

	// Set on assignment
	Fare    *float64
	Vehicle *VehicleSnapshot

	// Two-phase start confirmation
	PassengerConfirmed bool
	DriverConfirmed    bool

	// Lifecycle timestamps
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	// Cancellation info
	CancelledBy        *Party
	CancellationReason *string
}

// VehicleSnapshot is the driver's vehicle copied onto the ride at assignment time.
type VehicleSnapshot struct {
	Model        string `json:"model"`
	Color        string `json:"color"`
	Registration string `json:"registration"`
}

// Party identifies which side of a ride acted.
type Party string

const (
	PartyPassenger Party = "PASSENGER"
	PartyDriver    Party = "DRIVER"
)

var (
	ErrPassengerRequired     = errors.New("passenger id is required")
	ErrVehicleTypeRequired   = errors.New("vehicle type id is required")
	ErrNegativeDistance      = errors.New("distance cannot be negative")
	ErrSamePickupAndDropoff  = errors.New("pickup and dropoff must differ")
	ErrNotParticipant        = errors.New("actor is not a participant of this ride")
	ErrDriverRequired        = errors.New("driver id is required")
	ErrFareMustBePositive    = errors.New("fare must be positive")
	ErrRideIDRequired        = errors.New("ride id is required")
	ErrEmptyFilter           = errors.New("ride filter must name a ride or a participant")
	ErrCannotUnassignOnPatch = errors.New("patch cannot clear an assigned driver")
)

// NewRide creates a new ride in REQUESTED state.
func NewRide(id, passengerID, vehicleTypeID string, pickup, dropoff geo.Point, distanceKM *float64) (*Ride, error) {
	if passengerID = strings.TrimSpace(passengerID); passengerID == "" {
		return nil, ErrPassengerRequired
	}
	if vehicleTypeID = strings.TrimSpace(vehicleTypeID); vehicleTypeID == "" {
		return nil, ErrVehicleTypeRequired
	}
	if err := pickup.Validate(); err != nil {
		return nil, err
	}
	if err := dropoff.Validate(); err != nil {
		return nil, err
	}
	if pickup.Equal(dropoff) {
		return nil, ErrSamePickupAndDropoff
	}
	if distanceKM != nil && *distanceKM < 0 {
		return nil, ErrNegativeDistance
	}

	now := time.Now().UTC()
	return &Ride{
		ID:            id,
		CreatedAt:     now,
		UpdatedAt:     now,
		PassengerID:   passengerID,
		Status:        StatusRequested,
		VehicleTypeID: vehicleTypeID,
		Pickup:        pickup,
		Dropoff:       dropoff,
		DistanceKM:    distanceKM,
	}, nil
}

// PartyOf reports which side of the ride the actor is on.
func (ride *Ride) PartyOf(actorID string) (Party, error) {
	switch {
	case actorID == "":
		return "", ErrNotParticipant
	case actorID == ride.PassengerID:
		return PartyPassenger, nil
	case ride.DriverID != nil && actorID == *ride.DriverID:
		return PartyDriver, nil
	default:
		return "", ErrNotParticipant
	}
}

// Counterpart returns the identity on the other side of the ride, if any.
func (ride *Ride) Counterpart(actorID string) (string, bool) {
	if actorID == ride.PassengerID {
		if ride.DriverID == nil || *ride.DriverID == "" {
			return "", false
		}
		return *ride.DriverID, true
	}
	return ride.PassengerID, ride.PassengerID != ""
}

// DriverIDValue returns the assigned driver id or "".
func (ride *Ride) DriverIDValue() string {
	if ride.DriverID == nil {
		return ""
	}
	return *ride.DriverID
}

// HasConfirmed reports whether the given party already acknowledged the start.
func (ride *Ride) HasConfirmed(party Party) bool {
	if party == PartyDriver {
		return ride.DriverConfirmed
	}
	return ride.PassengerConfirmed
}

// BothConfirmed reports whether both parties acknowledged the physical start.
func (ride *Ride) BothConfirmed() bool {
	return ride.PassengerConfirmed && ride.DriverConfirmed
}

// Clone returns a deep copy so callers cannot alias stored state.
func (ride *Ride) Clone() *Ride {
	if ride == nil {
		return nil
	}
	out := *ride
	out.DriverID = clonePtr(ride.DriverID)
	out.DistanceKM = clonePtr(ride.DistanceKM)
	out.Fare = clonePtr(ride.Fare)
	out.Vehicle = clonePtr(ride.Vehicle)
	out.StartedAt = clonePtr(ride.StartedAt)
	out.CompletedAt = clonePtr(ride.CompletedAt)
	out.CancelledAt = clonePtr(ride.CancelledAt)
	out.CancelledBy = clonePtr(ride.CancelledBy)
	out.CancellationReason = clonePtr(ride.CancellationReason)
	return &out
}

func clonePtr[T any](in *T) *T {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}
