package rides

import (
	"context"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/apperr"
)

// Assign moves a REQUESTED ride to ACCEPTED for driverID. Of two racing
// assigns exactly one wins; the loser gets InvalidState.
// It joins the caller's unit of work when there is one.
func (m *Machine) Assign(ctx context.Context, rideID, driverID string, fare float64, vehicle ride.VehicleSnapshot) (ride.Ride, error) {
	filter, patch, err := ride.AssignTransition(rideID, driverID, fare, vehicle)
	if err != nil {
		return ride.Ride{}, invalidInput(err)
	}

	var out *ride.Ride
	err = m.inTx(ctx, func(ctx context.Context) error {
		ok, err := m.rides.UpdateWhere(ctx, filter, patch)
		if err != nil {
			return err
		}
		if !ok {
			cur, err := m.load(ctx, rideID)
			if err != nil {
				return err
			}
			return apperr.InvalidState("ride %s is %s, not REQUESTED", rideID, cur.Status)
		}

		out, err = m.load(ctx, rideID)
		if err != nil {
			return err
		}
		return m.appendEvent(ctx, rideID, ride.EventOfferAccepted, ride.StatusRequested, ride.StatusAccepted, map[string]any{
			"driver_id": driverID,
			"fare":      fare,
			"vehicle":   vehicle,
		})
	})
	if err != nil {
		return ride.Ride{}, err
	}

	m.logger.Info(m.logger.WithRideID(ctx, rideID), "ride_assigned", "Ride assigned to driver", map[string]any{
		"driver_id": driverID,
		"fare":      fare,
	})
	return *out, nil
}
