package postgres

import (
	"context"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/apperr"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepo reads profiles and mirrors presence into the users table.
type UserRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepo constructs a new UserRepo.
func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// Upsert inserts or refreshes a profile; presence columns are left alone on conflict.
func (repo *UserRepo) Upsert(ctx context.Context, u *user.User) error {
	if u == nil {
		return apperr.InvalidInput("user is required")
	}
	if err := u.Validate(); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, err, "invalid user")
	}

	err := conn(ctx, repo.pool).QueryRow(ctx, `
		INSERT INTO users (
			id, name, role, status, vehicle_type_id,
			vehicle_brand, vehicle_model, vehicle_color, vehicle_registration, rating
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			status = EXCLUDED.status,
			vehicle_type_id = EXCLUDED.vehicle_type_id,
			vehicle_brand = EXCLUDED.vehicle_brand,
			vehicle_model = EXCLUDED.vehicle_model,
			vehicle_color = EXCLUDED.vehicle_color,
			vehicle_registration = EXCLUDED.vehicle_registration,
			rating = EXCLUDED.rating,
			updated_at = now()
		RETURNING created_at, updated_at
	`,
		u.ID,
		u.Name,
		u.Role.String(),
		u.Status.String(),
		nullIfEmpty(u.VehicleTypeID),
		nullIfEmpty(u.Vehicle.Brand),
		nullIfEmpty(u.Vehicle.Model),
		nullIfEmpty(u.Vehicle.Color),
		nullIfEmpty(u.Vehicle.Registration),
		u.Rating,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	return mapError(err, "upsert user")
}

// Get returns one user by id.
func (repo *UserRepo) Get(ctx context.Context, id string) (*user.User, error) {
	var (
		out                                   user.User
		roleText, statusText                  string
		vehicleType, brand, model, color, reg *string
	)

	err := conn(ctx, repo.pool).QueryRow(ctx, `
		SELECT
			id, created_at, updated_at, name, role, status,
			vehicle_type_id, vehicle_brand, vehicle_model, vehicle_color, vehicle_registration,
			rating, is_online, connection_handle, latitude, longitude
		FROM users
		WHERE id = $1
	`, id).Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt, &out.Name, &roleText, &statusText,
		&vehicleType, &brand, &model, &color, &reg,
		&out.Rating, &out.IsOnline, &out.ConnectionHandle, &out.Latitude, &out.Longitude,
	)
	if err != nil {
		return nil, mapError(err, "user "+id)
	}

	out.Role = user.Role(roleText)
	out.Status = user.Status(statusText)
	out.VehicleTypeID = deref(vehicleType)
	out.Vehicle = user.Vehicle{
		Brand:        deref(brand),
		Model:        deref(model),
		Color:        deref(color),
		Registration: deref(reg),
	}
	return &out, nil
}

// MarkOnline records the connection handle for the user.
func (repo *UserRepo) MarkOnline(ctx context.Context, userID, handle string) error {
	_, err := conn(ctx, repo.pool).Exec(ctx, `
		UPDATE users SET is_online = true, connection_handle = $2, updated_at = now()
		WHERE id = $1
	`, userID, handle)
	return mapError(err, "mark user online")
}

// MarkOffline clears the online flag and the handle.
func (repo *UserRepo) MarkOffline(ctx context.Context, userID string) error {
	_, err := conn(ctx, repo.pool).Exec(ctx, `
		UPDATE users SET is_online = false, connection_handle = NULL, updated_at = now()
		WHERE id = $1
	`, userID)
	return mapError(err, "mark user offline")
}

// UpdatePosition stores the last known coordinate.
func (repo *UserRepo) UpdatePosition(ctx context.Context, userID string, point geo.Point) error {
	_, err := conn(ctx, repo.pool).Exec(ctx, `
		UPDATE users SET latitude = $2, longitude = $3, updated_at = now()
		WHERE id = $1
	`, userID, point.Latitude, point.Longitude)
	return mapError(err, "update user position")
}
