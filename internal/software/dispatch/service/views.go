package service

import (
	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/contracts"
)

func toGeoPoint(point geo.Point) contracts.GeoPoint {
	return contracts.GeoPoint{Lat: point.Latitude, Lng: point.Longitude, Address: point.Address}
}

// RideView renders a ride the way every notification carries it.
func RideView(r ride.Ride) contracts.RideView {
	view := contracts.RideView{
		RideID:             r.ID,
		Status:             r.Status.String(),
		PassengerID:        r.PassengerID,
		DriverID:           r.DriverIDValue(),
		VehicleTypeID:      r.VehicleTypeID,
		Pickup:             toGeoPoint(r.Pickup),
		Dropoff:            toGeoPoint(r.Dropoff),
		DistanceKM:         r.DistanceKM,
		Fare:               r.Fare,
		PassengerConfirmed: r.PassengerConfirmed,
		DriverConfirmed:    r.DriverConfirmed,
		CreatedAt:          r.CreatedAt,
		StartedAt:          r.StartedAt,
		CompletedAt:        r.CompletedAt,
		CancelledAt:        r.CancelledAt,
	}
	if r.Vehicle != nil {
		view.Vehicle = &contracts.VehicleInfo{
			Model:        r.Vehicle.Model,
			Color:        r.Vehicle.Color,
			Registration: r.Vehicle.Registration,
		}
	}
	if r.CancelledBy != nil {
		view.CancelledBy = string(*r.CancelledBy)
	}
	if r.CancellationReason != nil {
		view.CancellationReason = *r.CancellationReason
	}
	return view
}

func offerView(o ride.Offer) contracts.OfferView {
	return contracts.OfferView{
		OfferID:   o.ID,
		RideID:    o.RideID,
		DriverID:  o.DriverID,
		Price:     o.Price,
		Status:    o.Status.String(),
		CreatedAt: o.CreatedAt,
	}
}

// driverBrief summarizes a driver for passengers. The rating is the configured
// fixed value; profile is optional.
func (engine *Engine) driverBrief(driverID string, profile *user.User) contracts.DriverBrief {
	brief := contracts.DriverBrief{DriverID: driverID, Rating: engine.cfg.DefaultRating}
	if profile == nil {
		return brief
	}
	brief.Name = profile.DisplayName()
	snap := profile.Snapshot()
	if snap != (ride.VehicleSnapshot{}) {
		brief.Vehicle = &contracts.VehicleInfo{Model: snap.Model, Color: snap.Color, Registration: snap.Registration}
	}
	return brief
}
