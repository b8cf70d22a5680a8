package memstore

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/apperr"
)

type offerRow struct{ offer ride.Offer }

// CreateIfRideRequested inserts the offer while its ride is still REQUESTED.
func (s *Offers) CreateIfRideRequested(ctx context.Context, o *ride.Offer) (bool, error) {
	if o == nil {
		return false, apperr.InvalidInput("offer is required")
	}
	created := false
	err := s.write(ctx, func() (func(), error) {
		parent, ok := s.rides[o.RideID]
		if !ok {
			return nil, apperr.NotFound("ride %s not found", o.RideID)
		}
		if parent.ride.Status != ride.StatusRequested {
			return nil, nil
		}

		o.ID = newID(o.ID)
		if _, exists := s.offers[o.ID]; exists {
			return nil, apperr.Conflict("offer %s already exists", o.ID)
		}
		s.offers[o.ID] = &offerRow{offer: *o}
		prev := s.offersByRide[o.RideID]
		s.offersByRide[o.RideID] = append(prev[:len(prev):len(prev)], o.ID)
		created = true

		id, rideID := o.ID, o.RideID
		return func() {
			delete(s.offers, id)
			s.offersByRide[rideID] = prev
		}, nil
	})
	return created, err
}

// Get returns a copy of the offer.
func (s *Offers) Get(ctx context.Context, id string) (*ride.Offer, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	row, ok := s.offers[id]
	if !ok {
		return nil, apperr.NotFound("offer %s not found", id)
	}
	o := row.offer
	return &o, nil
}

// ListByRide returns the offers of a ride, oldest first.
func (s *Offers) ListByRide(ctx context.Context, rideID string) ([]*ride.Offer, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ids := s.offersByRide[rideID]
	out := make([]*ride.Offer, 0, len(ids))
	for _, id := range ids {
		o := s.offers[id].offer
		out = append(out, &o)
	}
	return out, nil
}

// SettleAccepted accepts winnerID and rejects every other live offer of the ride.
func (s *Offers) SettleAccepted(ctx context.Context, rideID, winnerID string) ([]*ride.Offer, error) {
	var rejected []*ride.Offer
	err := s.write(ctx, func() (func(), error) {
		winner, ok := s.offers[winnerID]
		if !ok || winner.offer.RideID != rideID {
			return nil, apperr.NotFound("offer %s not found for ride %s", winnerID, rideID)
		}
		if winner.offer.Status != ride.OfferPending {
			return nil, apperr.InvalidState("offer %s is %s", winnerID, winner.offer.Status)
		}

		now := s.now()
		var undo []func()
		undo = append(undo, s.setOfferStatus(winner, ride.OfferAccepted, now))
		for _, id := range s.offersByRide[rideID] {
			row := s.offers[id]
			if id == winnerID || row.offer.Status == ride.OfferRejected {
				continue
			}
			undo = append(undo, s.setOfferStatus(row, ride.OfferRejected, now))
			o := row.offer
			rejected = append(rejected, &o)
		}
		return func() {
			for i := len(undo) - 1; i >= 0; i-- {
				undo[i]()
			}
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return rejected, nil
}

// RejectPending rejects every PENDING offer of the ride.
func (s *Offers) RejectPending(ctx context.Context, rideID string) ([]*ride.Offer, error) {
	var rejected []*ride.Offer
	err := s.write(ctx, func() (func(), error) {
		now := s.now()
		var undo []func()
		for _, id := range s.offersByRide[rideID] {
			row := s.offers[id]
			if row.offer.Status != ride.OfferPending {
				continue
			}
			undo = append(undo, s.setOfferStatus(row, ride.OfferRejected, now))
			o := row.offer
			rejected = append(rejected, &o)
		}
		return func() {
			for i := len(undo) - 1; i >= 0; i-- {
				undo[i]()
			}
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return rejected, nil
}

func (s *Store) setOfferStatus(row *offerRow, status ride.OfferStatus, now time.Time) func() {
	before := row.offer
	row.offer.Status = status
	row.offer.UpdatedAt = now
	return func() { row.offer = before }
}
