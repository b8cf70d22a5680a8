package rides

import (
	"context"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/apperr"
)

// StartOutcome tells what a ConfirmStart call changed.
type StartOutcome int

const (
	// StartUnchanged: the party had already confirmed or the ride is running.
	StartUnchanged StartOutcome = iota
	StartConfirmed
	StartBegan
)

// ConfirmStart records actorID's start confirmation. Once both parties have
// confirmed an ACCEPTED ride it moves to IN_PROGRESS. A party confirming
// twice, or confirming an IN_PROGRESS ride, changes nothing.
func (m *Machine) ConfirmStart(ctx context.Context, rideID, actorID string) (ride.Ride, StartOutcome, error) {
	var (
		out     *ride.Ride
		outcome StartOutcome
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

		switch cur.Status {
		case ride.StatusInProgress:
			out = cur
			return nil
		case ride.StatusAccepted:
			if cur.HasConfirmed(party) {
				out = cur
				return nil
			}
		default:
			return apperr.InvalidState("ride %s is %s, start cannot be confirmed", rideID, cur.Status)
		}

		filter, patch := ride.ConfirmTransition(rideID, party)
		ok, err := m.rides.UpdateWhere(ctx, filter, patch)
		if err != nil {
			return err
		}
		if !ok {
			// the ride moved on, or this party's confirmation landed concurrently
			return m.settleLateConfirm(ctx, rideID, party, &out)
		}

		startFilter, startPatch := ride.StartTransition(rideID, m.now())
		started, err := m.rides.UpdateWhere(ctx, startFilter, startPatch)
		if err != nil {
			return err
		}

		if out, err = m.load(ctx, rideID); err != nil {
			return err
		}
		if started {
			outcome = StartBegan
			return m.appendEvent(ctx, rideID, ride.EventRideStarted, ride.StatusAccepted, ride.StatusInProgress, map[string]any{
				"confirmed_by": string(party),
			})
		}
		outcome = StartConfirmed
		return m.appendEvent(ctx, rideID, ride.EventStartConfirm, ride.StatusAccepted, ride.StatusAccepted, map[string]any{
			"confirmed_by": string(party),
		})
	})
	if err != nil {
		return ride.Ride{}, StartUnchanged, err
	}

	if outcome == StartBegan {
		m.logger.Info(m.logger.WithRideID(ctx, rideID), "ride_started", "Both parties confirmed, ride started", nil)
	}
	return *out, outcome, nil
}

func (m *Machine) settleLateConfirm(ctx context.Context, rideID string, party ride.Party, out **ride.Ride) error {
	cur, err := m.load(ctx, rideID)
	if err != nil {
		return err
	}
	if cur.Status == ride.StatusInProgress || (cur.Status == ride.StatusAccepted && cur.HasConfirmed(party)) {
		*out = cur
		return nil
	}
	return apperr.InvalidState("ride %s is %s, start cannot be confirmed", rideID, cur.Status)
}

// Complete finishes an IN_PROGRESS ride. Only the assigned driver may complete it.
func (m *Machine) Complete(ctx context.Context, rideID, actorID string) (ride.Ride, error) {
	var out *ride.Ride
	err := m.inTx(ctx, func(ctx context.Context) error {
		cur, err := m.load(ctx, rideID)
		if err != nil {
			return err
		}
		if cur.DriverIDValue() == "" || cur.DriverIDValue() != actorID {
			return apperr.Forbidden("only the assigned driver can complete ride %s", rideID)
		}
		if cur.Status != ride.StatusInProgress {
			return apperr.InvalidState("ride %s is %s, not IN_PROGRESS", rideID, cur.Status)
		}

		filter, patch := ride.CompleteTransition(rideID, actorID, m.now())
		ok, err := m.rides.UpdateWhere(ctx, filter, patch)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("ride %s changed while completing", rideID)
		}
		if out, err = m.load(ctx, rideID); err != nil {
			return err
		}
		return m.appendEvent(ctx, rideID, ride.EventRideCompleted, ride.StatusInProgress, ride.StatusCompleted, map[string]any{
			"driver_id": actorID,
		})
	})
	if err != nil {
		return ride.Ride{}, err
	}

	m.logger.Info(m.logger.WithRideID(ctx, rideID), "ride_completed", "Ride completed", map[string]any{"driver_id": actorID})
	return *out, nil
}
