package rides

import (
	"context"
	"strings"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"

	"github.com/google/uuid"
)

// RequestInput describes a new ride request from a passenger.
type RequestInput struct {
	PassengerID   string
	VehicleTypeID string
	Pickup        geo.Point
	Dropoff       geo.Point
	DistanceKM    *float64
}

// Request creates a ride in REQUESTED.
func (m *Machine) Request(ctx context.Context, in RequestInput) (ride.Ride, error) {
	r, err := ride.NewRide(uuid.NewString(), in.PassengerID, strings.TrimSpace(in.VehicleTypeID), in.Pickup, in.Dropoff, in.DistanceKM)
	if err != nil {
		return ride.Ride{}, invalidInput(err)
	}

	err = m.inTx(ctx, func(ctx context.Context) error {
		if err := m.rides.Create(ctx, r); err != nil {
			return err
		}
		return m.appendEvent(ctx, r.ID, ride.EventRideRequested, "", ride.StatusRequested, map[string]any{
			"passenger_id":    r.PassengerID,
			"vehicle_type_id": r.VehicleTypeID,
		})
	})
	if err != nil {
		m.logger.Error(ctx, "ride_request_failed", "Failed to create ride", err, map[string]any{"passenger_id": in.PassengerID})
		return ride.Ride{}, err
	}

	m.logger.Info(m.logger.WithRideID(ctx, r.ID), "ride_requested", "Ride created", map[string]any{
		"passenger_id":    r.PassengerID,
		"vehicle_type_id": r.VehicleTypeID,
	})
	return *r, nil
}
