package memstore

import (
	"context"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/apperr"
)

type userRow struct{ user user.User }

// Upsert stores a profile, keeping the presence fields of an existing row.
func (s *Users) Upsert(ctx context.Context, u *user.User) error {
	if u == nil {
		return apperr.InvalidInput("user is required")
	}
	if err := u.Validate(); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, err, "invalid user")
	}
	return s.write(ctx, func() (func(), error) {
		next := *u
		now := s.now()
		prev, existed := s.users[u.ID]
		if existed {
			next.CreatedAt = prev.user.CreatedAt
			next.IsOnline = prev.user.IsOnline
			next.ConnectionHandle = prev.user.ConnectionHandle
			next.Latitude, next.Longitude = prev.user.Latitude, prev.user.Longitude
		} else {
			next.CreatedAt = now
		}
		next.UpdatedAt = now
		s.users[u.ID] = &userRow{user: next}

		id := u.ID
		return func() {
			if existed {
				s.users[id] = prev
			} else {
				delete(s.users, id)
			}
		}, nil
	})
}

// Get returns a copy of the profile.
func (s *Users) Get(ctx context.Context, id string) (*user.User, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	row, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user %s not found", id)
	}
	u := row.user
	return &u, nil
}

// MarkOnline records the connection handle. Unknown users are ignored.
func (s *Users) MarkOnline(ctx context.Context, userID, handle string) error {
	return s.updateUser(ctx, userID, func(u *user.User) {
		h := handle
		u.IsOnline = true
		u.ConnectionHandle = &h
	})
}

// MarkOffline clears the online flag and the handle.
func (s *Users) MarkOffline(ctx context.Context, userID string) error {
	return s.updateUser(ctx, userID, func(u *user.User) {
		u.IsOnline = false
		u.ConnectionHandle = nil
	})
}

// UpdatePosition stores the last known coordinate.
func (s *Users) UpdatePosition(ctx context.Context, userID string, point geo.Point) error {
	return s.updateUser(ctx, userID, func(u *user.User) {
		lat, lng := point.Latitude, point.Longitude
		u.Latitude, u.Longitude = &lat, &lng
	})
}

func (s *Users) updateUser(ctx context.Context, userID string, mutate func(u *user.User)) error {
	return s.write(ctx, func() (func(), error) {
		row, ok := s.users[userID]
		if !ok {
			return nil, nil
		}
		before := row.user
		mutate(&row.user)
		row.user.UpdatedAt = s.now()
		return func() { row.user = before }, nil
	})
}
