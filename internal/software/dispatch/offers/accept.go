package offers

import (
	"context"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/logger"
)

// Acceptance is the outcome of a successful Accept.
type Acceptance struct {
	Ride     ride.Ride
	Offer    ride.Offer
	Driver   *user.User // nil when the driver has no profile on file
	Rejected []ride.Offer
}

// Accept lets the ride's passenger pick an offer. The ride is assigned to the
// offer's driver at the offered price and every sibling offer is rejected in
// the same unit of work. Losing a race to another assignment yields Conflict
// and leaves all offers untouched.
func (l *Ledger) Accept(ctx context.Context, offerID, passengerID string) (Acceptance, error) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	if offerID == "" {
		return Acceptance{}, apperr.InvalidInput("offer_id is required")
	}
	offer, err := l.offers.Get(ctx, offerID)
	if err != nil {
		return Acceptance{}, err
	}
	current, err := l.rides.Get(ctx, offer.RideID)
	if err != nil {
		return Acceptance{}, err
	}
	if current.PassengerID != passengerID {
		return Acceptance{}, apperr.Forbidden("only the ride's passenger can accept its offers")
	}
	switch {
	case current.Status == ride.StatusAccepted && current.DriverIDValue() != "":
		// another offer won the ride
		return Acceptance{}, apperr.Conflict("ride %s was already assigned", current.ID)
	case !current.Status.CanTransitionTo(ride.StatusAccepted):
		return Acceptance{}, apperr.InvalidState("ride %s is %s, not REQUESTED", current.ID, current.Status)
	}
	if offer.Status != ride.OfferPending {
		return Acceptance{}, apperr.InvalidState("offer %s is %s", offer.ID, offer.Status)
	}

	driver, err := l.driverProfile(ctx, offer.DriverID)
	if err != nil {
		return Acceptance{}, err
	}
	var snapshot ride.VehicleSnapshot
	if driver != nil {
		snapshot = driver.Snapshot()
	}

	out := Acceptance{Driver: driver}
	err = l.uow.WithinTx(ctx, func(ctx context.Context) error {
		assigned, err := l.assigner.Assign(ctx, offer.RideID, offer.DriverID, offer.Price, snapshot)
		if err != nil {
			if apperr.Is(err, apperr.KindInvalidState) {
				return apperr.Conflict("ride %s was assigned concurrently", offer.RideID)
			}
			return err
		}
		out.Ride = assigned

		rejected, err := l.offers.SettleAccepted(ctx, offer.RideID, offer.ID)
		if err != nil {
			return err
		}
		for _, o := range rejected {
			out.Rejected = append(out.Rejected, *o)
		}
		return nil
	})
	if err != nil {
		return Acceptance{}, err
	}

	out.Offer = *offer
	out.Offer.Status = ride.OfferAccepted

	l.logger.Info(logger.WithRideID(ctx, offer.RideID), "offer_accepted", "Passenger accepted an offer", map[string]any{
		"offer_id":  offer.ID,
		"driver_id": offer.DriverID,
		"rejected":  len(out.Rejected),
	})
	return out, nil
}

func (l *Ledger) driverProfile(ctx context.Context, driverID string) (*user.User, error) {
	if l.users == nil {
		return nil, nil
	}
	driver, err := l.users.Get(ctx, driverID)
	if apperr.Is(err, apperr.KindNotFound) {
		l.logger.Warn(ctx, "driver_profile_missing", "Assigning without a vehicle snapshot", map[string]any{"driver_id": driverID})
		return nil, nil
	}
	return driver, err
}
