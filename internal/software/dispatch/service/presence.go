package service

import (
	"context"
	"strings"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/software/dispatch/matcher"
	"ride-dispatch/internal/software/dispatch/presence"
)

// Connect marks the actor online under its connection handle. Accounts that
// are on file but not active are refused.
func (engine *Engine) Connect(ctx context.Context, actor Actor) error {
	if actor.ID == "" || actor.Handle == "" {
		return apperr.InvalidInput("identity and handle are required")
	}
	vehicleTypeID := actor.VehicleTypeID
	if p := engine.profile(ctx, actor.ID); p != nil {
		if !p.Status.CanGoOnline() {
			return apperr.Forbidden("account is %s", p.Status)
		}
		if vehicleTypeID == "" {
			vehicleTypeID = p.VehicleTypeID
		}
	}

	engine.directory.Connect(ctx, presence.Record{
		Identity:      actor.ID,
		Role:          actor.Role,
		VehicleTypeID: vehicleTypeID,
		Handle:        actor.Handle,
	})
	engine.logger.Info(ctx, "user_connected", "Identity is online", map[string]any{
		"user_id": actor.ID,
		"role":    actor.Role.String(),
	})
	return nil
}

// Disconnect marks the identity offline unless a newer connection took over the handle.
func (engine *Engine) Disconnect(ctx context.Context, identity, handle string) {
	if engine.directory.DisconnectHandle(ctx, identity, handle) {
		engine.logger.Info(ctx, "user_disconnected", "Identity went offline", map[string]any{"user_id": identity})
	}
}

// UpdateLocation stores the sender's last known coordinate.
func (engine *Engine) UpdateLocation(ctx context.Context, actor Actor, in contracts.UpdateLocationPayload) error {
	point, err := geo.NewPoint(in.Lat, in.Lng, "")
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, err, "")
	}
	if !engine.directory.UpdatePosition(ctx, actor.ID, point) {
		return apperr.InvalidState("identity %s is not online", actor.ID)
	}
	return nil
}

// NearbyDrivers lists online drivers of a vehicle type around the query
// location, or around the sender's last known position. When neither is
// known every online driver of the type is returned and Fallback is set.
func (engine *Engine) NearbyDrivers(ctx context.Context, actor Actor, in contracts.NearbyDriversQuery) (contracts.NearbyDriversPayload, error) {
	if err := actor.requirePassenger(); err != nil {
		return contracts.NearbyDriversPayload{}, err
	}
	vehicleTypeID := strings.TrimSpace(in.VehicleTypeID)
	if vehicleTypeID == "" {
		return contracts.NearbyDriversPayload{}, apperr.InvalidInput("vehicle_type_id is required")
	}

	var center *geo.Point
	if in.Location != nil {
		point, err := geo.NewPoint(in.Location.Lat, in.Location.Lng, in.Location.Address)
		if err != nil {
			return contracts.NearbyDriversPayload{}, apperr.Wrap(apperr.KindInvalidInput, err, "")
		}
		center = &point
	} else if rec, ok := engine.directory.Lookup(actor.ID); ok && rec.Location != nil {
		center = rec.Location
	}

	out := contracts.NearbyDriversPayload{VehicleTypeID: vehicleTypeID, Drivers: []contracts.NearbyDriver{}}
	var cands []matcher.Candidate
	if center == nil {
		out.Fallback = true
		cands = engine.matcher.SelectAll(vehicleTypeID)
	} else {
		radius := in.RadiusKM
		if radius <= 0 {
			radius = engine.cfg.RadiusKM
		}
		cands = engine.nearby(*center, vehicleTypeID, radius)
	}

	for _, c := range cands {
		entry := contracts.NearbyDriver{DriverID: c.Identity, DistanceKM: c.DistanceKM}
		if c.Location != nil {
			loc := toGeoPoint(*c.Location)
			entry.Location = &loc
		}
		out.Drivers = append(out.Drivers, entry)
	}
	return out, nil
}
