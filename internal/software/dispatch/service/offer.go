package service

import (
	"context"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/software/dispatch/offers"
)

const reasonOtherOfferAccepted = "another offer was accepted"

// SubmitOffer records a driver's bid and tells the passenger about it.
func (engine *Engine) SubmitOffer(ctx context.Context, actor Actor, in contracts.SubmitOfferPayload) (ride.Offer, error) {
	if err := actor.requireDriver(); err != nil {
		return ride.Offer{}, err
	}
	if in.RideID == "" {
		return ride.Offer{}, apperr.InvalidInput("ride_id is required")
	}
	ctx = logger.WithRideID(ctx, in.RideID)

	r, err := engine.rides.Get(ctx, in.RideID)
	if err != nil {
		return ride.Offer{}, err
	}
	offer, err := engine.offers.Submit(ctx, r.ID, actor.ID, in.Price)
	if err != nil {
		return ride.Offer{}, err
	}

	view := offerView(offer)
	engine.notify(ctx, actor.ID, contracts.EventOfferSubmitted, view)
	engine.notify(ctx, r.PassengerID, contracts.EventNewOffer, contracts.NewOfferPayload{
		Offer:  view,
		Driver: engine.driverBrief(actor.ID, engine.profile(ctx, actor.ID)),
	})
	return offer, nil
}

// AcceptOffer assigns the ride to the offer's driver. Losing bidders are told
// their offers were rejected.
func (engine *Engine) AcceptOffer(ctx context.Context, actor Actor, in contracts.AcceptOfferPayload) (offers.Acceptance, error) {
	if in.OfferID == "" {
		return offers.Acceptance{}, apperr.InvalidInput("offer_id is required")
	}

	res, err := engine.offers.Accept(ctx, in.OfferID, actor.ID)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) && engine.metrics != nil {
			engine.metrics.AssignConflicts.Inc()
		}
		return offers.Acceptance{}, err
	}
	if engine.metrics != nil {
		engine.metrics.Assignments.Inc()
	}

	ctx = logger.WithRideID(ctx, res.Ride.ID)
	engine.publish(ctx, res.Ride, ride.EventOfferAccepted)

	brief := engine.driverBrief(res.Offer.DriverID, res.Driver)
	payload := contracts.OfferAcceptedPayload{
		Ride:   RideView(res.Ride),
		Offer:  offerView(res.Offer),
		Driver: &brief,
	}
	engine.notify(ctx, res.Offer.DriverID, contracts.EventOfferAccepted, payload)
	engine.notify(ctx, res.Ride.PassengerID, contracts.EventRideAcceptedSuccess, payload)

	for _, lost := range res.Rejected {
		engine.notify(ctx, lost.DriverID, contracts.EventOfferRejected, contracts.OfferRejectedPayload{
			OfferID: lost.ID,
			RideID:  lost.RideID,
			Reason:  reasonOtherOfferAccepted,
		})
	}
	return res, nil
}
