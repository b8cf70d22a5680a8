package rides

import (
	"context"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/retry"
)

// Get reads a ride, retrying while the store is unavailable.
func (m *Machine) Get(ctx context.Context, rideID string) (ride.Ride, error) {
	r, err := retry.Value(ctx, m.reads, "get_ride", func(ctx context.Context) (*ride.Ride, error) {
		ctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
		defer cancel()
		return m.load(ctx, rideID)
	})
	if err != nil {
		return ride.Ride{}, err
	}
	return *r, nil
}

// History lists the user's rides newest first: as driver for drivers, as
// passenger otherwise. limit is clamped to the configured history limit.
func (m *Machine) History(ctx context.Context, userID string, role user.Role, limit int) ([]ride.Ride, error) {
	if userID == "" {
		return nil, apperr.InvalidInput("user id is required")
	}
	filter := ride.Filter{PassengerID: userID}
	switch role {
	case user.RoleDriver:
		filter = ride.Filter{DriverID: userID}
	case user.RolePassenger:
	default:
		return nil, apperr.Forbidden("role %s has no ride history", role)
	}
	if limit <= 0 || limit > m.cfg.HistoryLimit {
		limit = m.cfg.HistoryLimit
	}

	list, err := retry.Value(ctx, m.reads, "ride_history", func(ctx context.Context) ([]*ride.Ride, error) {
		ctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
		defer cancel()
		return m.rides.ListWhere(ctx, filter, limit)
	})
	if err != nil {
		return nil, err
	}

	out := make([]ride.Ride, 0, len(list))
	for _, r := range list {
		out = append(out, *r)
	}
	return out, nil
}
