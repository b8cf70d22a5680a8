package rides

import (
	"context"
	"slices"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/apperr"
)

// Cancel cancels a REQUESTED or ACCEPTED ride on behalf of either party.
// Cancelling a REQUESTED ride rejects its pending offers in the same unit of work.
func (m *Machine) Cancel(ctx context.Context, rideID, actorID, reason string) (ride.Ride, error) {
	var (
		out      *ride.Ride
		rejected int
	)
	err := m.inTx(ctx, func(ctx context.Context) error {
		cur, err := m.load(ctx, rideID)
		if err != nil {
			return err
		}
		party, err := cur.PartyOf(actorID)
		if err != nil {
			return apperr.Forbidden("user %s is not a participant of ride %s", actorID, rideID)
		}
		if !slices.Contains(ride.Cancellable(), cur.Status) {
			return apperr.InvalidState("ride %s is %s and can no longer be cancelled", rideID, cur.Status)
		}

		filter, patch := ride.CancelTransition(rideID, party, reason, m.now())
		ok, err := m.rides.UpdateWhere(ctx, filter, patch)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("ride %s changed while cancelling", rideID)
		}

		if cur.Status == ride.StatusRequested && m.offers != nil {
			offers, err := m.offers.RejectPending(ctx, rideID)
			if err != nil {
				return err
			}
			rejected = len(offers)
		}

		if out, err = m.load(ctx, rideID); err != nil {
			return err
		}
		return m.appendEvent(ctx, rideID, ride.EventRideCancelled, cur.Status, ride.StatusCancelled, map[string]any{
			"cancelled_by": string(party),
			"reason":       reason,
		})
	})
	if err != nil {
		return ride.Ride{}, err
	}

	m.logger.Info(m.logger.WithRideID(ctx, rideID), "ride_cancelled", "Ride cancelled", map[string]any{
		"actor_id":        actorID,
		"reason":          reason,
		"offers_rejected": rejected,
	})
	return *out, nil
}
