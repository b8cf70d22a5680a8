package memstore

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/apperr"
)

type rideRow struct{ ride *ride.Ride }

type eventRow struct{ event ride.Event }

// Create inserts a new ride; the id is generated when empty.
func (s *Rides) Create(ctx context.Context, r *ride.Ride) error {
	if r == nil {
		return apperr.InvalidInput("ride is required")
	}
	return s.write(ctx, func() (func(), error) {
		r.ID = newID(r.ID)
		if _, exists := s.rides[r.ID]; exists {
			return nil, apperr.Conflict("ride %s already exists", r.ID)
		}
		s.rides[r.ID] = &rideRow{ride: r.Clone()}
		id := r.ID
		return func() { delete(s.rides, id) }, nil
	})
}

// Get returns a copy of the ride.
func (s *Rides) Get(ctx context.Context, id string) (*ride.Ride, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	row, ok := s.rides[id]
	if !ok {
		return nil, apperr.NotFound("ride %s not found", id)
	}
	return row.ride.Clone(), nil
}

// UpdateWhere is the compare-and-swap primitive behind every ride transition.
func (s *Rides) UpdateWhere(ctx context.Context, filter ride.Filter, patch ride.Patch) (bool, error) {
	if filter.ID == "" {
		return false, apperr.InvalidInput("conditional update needs a ride id")
	}
	if err := patch.Validate(); err != nil {
		return false, apperr.Wrap(apperr.KindInvalidInput, err, "invalid ride patch")
	}

	applied := false
	err := s.write(ctx, func() (func(), error) {
		row, ok := s.rides[filter.ID]
		if !ok || !filter.Matches(row.ride) {
			return nil, nil
		}
		before := row.ride.Clone()
		patch.Apply(row.ride, s.now())
		applied = true
		return func() { row.ride = before }, nil
	})
	return applied, err
}

// ListWhere returns matching rides, newest first. limit <= 0 means no limit.
func (s *Rides) ListWhere(ctx context.Context, filter ride.Filter, limit int) ([]*ride.Ride, error) {
	if err := ride.ValidateFilter(filter); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, err, "invalid ride filter")
	}
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*ride.Ride
	for _, row := range s.rides {
		if filter.Matches(row.ride) {
			out = append(out, row.ride.Clone())
		}
	}
	sortNewestFirst(out, func(r *ride.Ride) time.Time { return r.CreatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AppendEvent records an audit entry for the ride.
func (s *Rides) AppendEvent(ctx context.Context, e *ride.Event) error {
	if e == nil {
		return apperr.InvalidInput("event is required")
	}
	if err := e.Validate(); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, err, "invalid ride event")
	}
	return s.write(ctx, func() (func(), error) {
		e.ID = newID(e.ID)
		if e.CreatedAt.IsZero() {
			e.CreatedAt = s.now()
		}
		rideID := e.RideID
		prev := s.events[rideID]
		s.events[rideID] = append(prev[:len(prev):len(prev)], &eventRow{event: *e})
		return func() { s.events[rideID] = prev }, nil
	})
}

// Events returns the audit trail of a ride in insertion order.
func (s *Rides) Events(rideID string) []ride.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.events[rideID]
	out := make([]ride.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.event)
	}
	return out
}
