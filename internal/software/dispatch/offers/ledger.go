// Package offers keeps the per-ride ledger of driver bids and settles the accepted one.
package offers

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"

	"github.com/google/uuid"
)

// Assigner moves a REQUESTED ride to ACCEPTED; implemented by rides.Machine.
type Assigner interface {
	Assign(ctx context.Context, rideID, driverID string, fare float64, vehicle ride.VehicleSnapshot) (ride.Ride, error)
}

type Ledger struct {
	logger       *logger.Logger
	uow          ports.UnitOfWork
	rides        ports.RideStore
	offers       ports.OfferStore
	users        ports.UserStore
	assigner     Assigner
	storeTimeout time.Duration
}

func New(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	rides ports.RideStore,
	offers ports.OfferStore,
	users ports.UserStore,
	assigner Assigner,
	storeTimeout time.Duration,
) *Ledger {
	if storeTimeout <= 0 {
		storeTimeout = 3 * time.Second
	}
	return &Ledger{
		logger:       logger,
		uow:          uow,
		rides:        rides,
		offers:       offers,
		users:        users,
		assigner:     assigner,
		storeTimeout: storeTimeout,
	}
}

// Submit records a PENDING bid of driverID on a REQUESTED ride.
func (l *Ledger) Submit(ctx context.Context, rideID, driverID string, price float64) (ride.Offer, error) {
	offer, err := ride.NewOffer(uuid.NewString(), rideID, driverID, price)
	if err != nil {
		return ride.Offer{}, apperr.Wrap(apperr.KindInvalidInput, err, "")
	}

	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	created, err := l.offers.CreateIfRideRequested(ctx, offer)
	if err != nil {
		return ride.Offer{}, err
	}
	if !created {
		return ride.Offer{}, apperr.InvalidState("ride %s is no longer accepting offers", rideID)
	}

	l.logger.Info(logger.WithRideID(ctx, rideID), "offer_submitted", "Driver submitted an offer", map[string]any{
		"offer_id":  offer.ID,
		"driver_id": driverID,
		"price":     price,
	})
	return *offer, nil
}

// ListForRide returns the bids of a ride, oldest first.
func (l *Ledger) ListForRide(ctx context.Context, rideID string) ([]ride.Offer, error) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	list, err := l.offers.ListByRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	out := make([]ride.Offer, 0, len(list))
	for _, o := range list {
		out = append(out, *o)
	}
	return out, nil
}
