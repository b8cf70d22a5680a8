package user

import (
	"errors"
	"strings"
	"time"

	"ride-dispatch/internal/domain/ride"
)

// Vehicle describes a driver's registered vehicle.
type Vehicle struct {
	Brand        string
	Model        string
	Color        string
	Registration string
}

// User is the domain entity corresponding to the `users` table.
// The dispatch core only reads profiles; the presence fields are written by the presence mirror.
type User struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Name      string
	Role      Role
	Status    Status

	// Driver-only
	VehicleTypeID string
	Vehicle       Vehicle
	Rating        float64

	// Presence mirror
	IsOnline         bool
	ConnectionHandle *string
	Latitude         *float64
	Longitude        *float64
}

var (
	ErrIDRequired         = errors.New("user id is required")
	ErrDriverVehicleType  = errors.New("driver must have a vehicle type")
	ErrBadTimestamps      = errors.New("updated_at cannot be before created_at")
	ErrRatingOutOfBounds  = errors.New("rating must be between 0 and 5")
	ErrPassengerHasRating = errors.New("only drivers carry a rating")
)

// Validate checks invariants of the User entity.
func (user *User) Validate() error {
	if strings.TrimSpace(user.ID) == "" {
		return ErrIDRequired
	}
	if !user.Role.Valid() {
		return ErrInvalidRole
	}
	if !user.Status.Valid() {
		return ErrInvalidStatus
	}
	if user.Role.IsDriver() && strings.TrimSpace(user.VehicleTypeID) == "" {
		return ErrDriverVehicleType
	}
	if user.Rating < 0 || user.Rating > 5 {
		return ErrRatingOutOfBounds
	}
	if !user.Role.IsDriver() && user.Rating != 0 {
		return ErrPassengerHasRating
	}
	if !user.CreatedAt.IsZero() && !user.UpdatedAt.IsZero() && user.UpdatedAt.Before(user.CreatedAt) {
		return ErrBadTimestamps
	}
	return nil
}

// Snapshot is the vehicle descriptor copied onto a ride at assignment.
func (user *User) Snapshot() ride.VehicleSnapshot {
	model := strings.TrimSpace(strings.TrimSpace(user.Vehicle.Brand) + " " + strings.TrimSpace(user.Vehicle.Model))
	return ride.VehicleSnapshot{
		Model:        model,
		Color:        strings.TrimSpace(user.Vehicle.Color),
		Registration: strings.TrimSpace(user.Vehicle.Registration),
	}
}

// DisplayName falls back to the id when no name is on file.
func (user *User) DisplayName() string {
	if name := strings.TrimSpace(user.Name); name != "" {
		return name
	}
	return user.ID
}
