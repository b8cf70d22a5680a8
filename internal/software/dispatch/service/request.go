package service

import (
	"context"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/software/dispatch/matcher"
	"ride-dispatch/internal/software/dispatch/rides"
)

// RequestRide creates a ride for a passenger and offers it to the drivers
// chosen by the payload's dispatch policy.
func (engine *Engine) RequestRide(ctx context.Context, actor Actor, in contracts.RequestRidePayload) (ride.Ride, error) {
	if err := actor.requirePassenger(); err != nil {
		return ride.Ride{}, err
	}
	pickup, err := geo.NewPoint(in.Pickup.Lat, in.Pickup.Lng, in.Pickup.Address)
	if err != nil {
		return ride.Ride{}, apperr.Wrap(apperr.KindInvalidInput, err, "invalid pickup")
	}
	dropoff, err := geo.NewPoint(in.Dropoff.Lat, in.Dropoff.Lng, in.Dropoff.Address)
	if err != nil {
		return ride.Ride{}, apperr.Wrap(apperr.KindInvalidInput, err, "invalid dropoff")
	}

	r, err := engine.rides.Request(ctx, rides.RequestInput{
		PassengerID:   actor.ID,
		VehicleTypeID: in.VehicleTypeID,
		Pickup:        pickup,
		Dropoff:       dropoff,
		DistanceKM:    in.DistanceKM,
	})
	if err != nil {
		return ride.Ride{}, err
	}
	ctx = logger.WithRideID(ctx, r.ID)
	engine.publish(ctx, r, ride.EventRideRequested)

	candidates := engine.candidates(r, PolicyFor(in))

	engine.notify(ctx, actor.ID, contracts.EventRideRequested, contracts.RideRequestedPayload{
		Ride:           RideView(r),
		CandidateCount: len(candidates),
	})

	var passengerName string
	if p := engine.profile(ctx, actor.ID); p != nil {
		passengerName = p.DisplayName()
	}
	delivered := 0
	for _, c := range candidates {
		if engine.notify(ctx, c.Identity, contracts.EventNewRideRequest, contracts.NewRideRequestPayload{
			Ride:          RideView(r),
			PassengerName: passengerName,
			DistanceKM:    c.DistanceKM,
		}) {
			delivered++
		}
	}

	engine.logger.Info(ctx, "ride_dispatched", "Ride request sent to drivers", map[string]any{
		"candidates": len(candidates),
		"delivered":  delivered,
	})
	engine.logger.Debug(ctx, "ride_candidates", "Drivers offered the ride", map[string]any{
		"driver_ids": matcher.Identities(candidates),
	})
	return r, nil
}

// candidates resolves the dispatch policy for a freshly requested ride.
func (engine *Engine) candidates(r ride.Ride, policy Policy) []matcher.Candidate {
	switch p := policy.(type) {
	case Targeted:
		rec, ok := engine.directory.Lookup(p.DriverID)
		if !ok || !rec.Online || !rec.Role.IsDriver() {
			return nil
		}
		cand := matcher.Candidate{Record: rec}
		if rec.Location != nil {
			d := geo.DistanceKM(r.Pickup, *rec.Location)
			cand.DistanceKM = &d
		}
		return []matcher.Candidate{cand}
	case Broadcast:
		radius := p.RadiusKM
		if radius <= 0 {
			radius = engine.cfg.RadiusKM
		}
		return engine.nearby(r.Pickup, r.VehicleTypeID, radius)
	default:
		return nil
	}
}

// nearby lists online drivers of vehicleTypeID with a known location within
// radiusKM, closest first. The directory is the only source: the Redis mirror
// trails it and measures distance on a different sphere.
func (engine *Engine) nearby(center geo.Point, vehicleTypeID string, radiusKM float64) []matcher.Candidate {
	return engine.matcher.SelectCandidates(center, vehicleTypeID, radiusKM)
}
