package service

import (
	"context"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/software/dispatch/rides"
)

// ConfirmStart records the sender's start confirmation. Both parties hear
// about each new confirmation, and about the start once both have confirmed.
func (engine *Engine) ConfirmStart(ctx context.Context, actor Actor, in contracts.RideRefPayload) (ride.Ride, error) {
	if in.RideID == "" {
		return ride.Ride{}, apperr.InvalidInput("ride_id is required")
	}
	ctx = logger.WithRideID(ctx, in.RideID)

	r, outcome, err := engine.rides.ConfirmStart(ctx, in.RideID, actor.ID)
	if err != nil {
		return ride.Ride{}, err
	}
	if outcome == rides.StartUnchanged {
		return r, nil
	}
	started := outcome == rides.StartBegan
	party, _ := r.PartyOf(actor.ID)
	parties := []string{r.PassengerID, r.DriverIDValue()}

	engine.broadcast(ctx, parties, contracts.EventStartConfirmed, contracts.StartConfirmedPayload{
		Ride:        RideView(r),
		ConfirmedBy: string(party),
		Started:     started,
	})
	if started {
		engine.publish(ctx, r, ride.EventRideStarted)
		engine.broadcast(ctx, parties, contracts.EventRideStarted, RideView(r))
	}
	return r, nil
}

// CancelRide cancels on behalf of either party.
func (engine *Engine) CancelRide(ctx context.Context, actor Actor, in contracts.CancelRidePayload) (ride.Ride, error) {
	if in.RideID == "" {
		return ride.Ride{}, apperr.InvalidInput("ride_id is required")
	}
	ctx = logger.WithRideID(ctx, in.RideID)

	r, err := engine.rides.Cancel(ctx, in.RideID, actor.ID, in.Reason)
	if err != nil {
		return ride.Ride{}, err
	}
	engine.publish(ctx, r, ride.EventRideCancelled)

	payload := contracts.RideCancelledPayload{RideID: r.ID, Reason: in.Reason}
	if r.CancelledBy != nil {
		payload.CancelledBy = string(*r.CancelledBy)
	}
	engine.notify(ctx, actor.ID, contracts.EventRideCancelledSuccess, payload)
	if other, ok := r.Counterpart(actor.ID); ok {
		engine.notify(ctx, other, contracts.EventRideCancelled, payload)
	}
	return r, nil
}

// CompleteRide finishes the ride for its driver and tells the passenger.
func (engine *Engine) CompleteRide(ctx context.Context, actor Actor, in contracts.RideRefPayload) (ride.Ride, error) {
	if in.RideID == "" {
		return ride.Ride{}, apperr.InvalidInput("ride_id is required")
	}
	ctx = logger.WithRideID(ctx, in.RideID)

	r, err := engine.rides.Complete(ctx, in.RideID, actor.ID)
	if err != nil {
		return ride.Ride{}, err
	}
	engine.publish(ctx, r, ride.EventRideCompleted)
	engine.notify(ctx, r.PassengerID, contracts.EventRideCompleted, RideView(r))
	return r, nil
}

// History lists the sender's rides, newest first.
func (engine *Engine) History(ctx context.Context, actor Actor, limit int) ([]contracts.RideView, error) {
	list, err := engine.rides.History(ctx, actor.ID, actor.Role, limit)
	if err != nil {
		return nil, err
	}
	out := make([]contracts.RideView, 0, len(list))
	for _, r := range list {
		out = append(out, RideView(r))
	}
	return out, nil
}
