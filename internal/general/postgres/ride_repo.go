package postgres

import (
	"context"
	"fmt"
	"strings"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RideRepo persists rides using pgx and plain SQL.
type RideRepo struct {
	pool *pgxpool.Pool
}

// NewRideRepo constructs a new RideRepo.
func NewRideRepo(pool *pgxpool.Pool) *RideRepo {
	return &RideRepo{pool: pool}
}

const rideColumns = `
	id, created_at, updated_at, passenger_id, driver_id, status, vehicle_type_id,
	pickup_lat, pickup_lng, pickup_address, dropoff_lat, dropoff_lng, dropoff_address,
	distance_km, fare, vehicle_model, vehicle_color, vehicle_registration,
	passenger_confirmed, driver_confirmed, started_at, completed_at, cancelled_at,
	cancelled_by, cancellation_reason`

// Create inserts a new ride row. The id is generated when empty.
func (repo *RideRepo) Create(ctx context.Context, r *ride.Ride) error {
	if r == nil {
		return apperr.InvalidInput("ride is required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	err := conn(ctx, repo.pool).QueryRow(ctx, `
		INSERT INTO rides (
			id, passenger_id, status, vehicle_type_id,
			pickup_lat, pickup_lng, pickup_address,
			dropoff_lat, dropoff_lng, dropoff_address, distance_km
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`,
		r.ID,
		r.PassengerID,
		r.Status.String(),
		r.VehicleTypeID,
		r.Pickup.Latitude, r.Pickup.Longitude, nullIfEmpty(r.Pickup.Address),
		r.Dropoff.Latitude, r.Dropoff.Longitude, nullIfEmpty(r.Dropoff.Address),
		r.DistanceKM,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	return mapError(err, "insert ride")
}

// Get fetches a ride by primary key.
func (repo *RideRepo) Get(ctx context.Context, id string) (*ride.Ride, error) {
	row := conn(ctx, repo.pool).QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	out, err := scanRide(row)
	if err != nil {
		return nil, mapError(err, "get ride "+id)
	}
	return out, nil
}

// UpdateWhere runs a single conditional UPDATE; RowsAffected tells whether the predicate held.
func (repo *RideRepo) UpdateWhere(ctx context.Context, filter ride.Filter, patch ride.Patch) (bool, error) {
	if filter.ID == "" {
		return false, apperr.InvalidInput("conditional update needs a ride id")
	}
	if err := patch.Validate(); err != nil {
		return false, apperr.Wrap(apperr.KindInvalidInput, err, "invalid ride patch")
	}

	q := &query{}
	sets := patchAssignments(q, patch)
	if len(sets) == 0 {
		return false, apperr.InvalidInput("empty ride patch")
	}
	sets = append(sets, "updated_at = now()")
	where := filterPredicates(q, filter)

	sql := fmt.Sprintf(`UPDATE rides SET %s WHERE %s`, strings.Join(sets, ", "), strings.Join(where, " AND "))
	tag, err := conn(ctx, repo.pool).Exec(ctx, sql, q.args...)
	if err != nil {
		return false, mapError(err, "conditional ride update")
	}
	return tag.RowsAffected() == 1, nil
}

// ListWhere returns matching rides, newest first.
func (repo *RideRepo) ListWhere(ctx context.Context, filter ride.Filter, limit int) ([]*ride.Ride, error) {
	if err := ride.ValidateFilter(filter); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, err, "invalid ride filter")
	}

	q := &query{}
	where := filterPredicates(q, filter)
	sql := `SELECT ` + rideColumns + ` FROM rides WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at DESC`
	if limit > 0 {
		sql += " LIMIT " + q.arg(limit)
	}

	rows, err := conn(ctx, repo.pool).Query(ctx, sql, q.args...)
	if err != nil {
		return nil, mapError(err, "query rides")
	}
	defer rows.Close()

	var rides []*ride.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		rides = append(rides, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "rows error")
	}
	return rides, nil
}

// ----- SQL building -----

// query accumulates positional arguments.
type query struct {
	args []any
}

func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func patchAssignments(q *query, patch ride.Patch) []string {
	var sets []string
	if patch.Status != nil {
		sets = append(sets, "status = "+q.arg(patch.Status.String()))
	}
	if patch.DriverID != nil {
		sets = append(sets, "driver_id = "+q.arg(*patch.DriverID))
	}
	if patch.Fare != nil {
		sets = append(sets, "fare = "+q.arg(*patch.Fare))
	}
	if patch.Vehicle != nil {
		sets = append(sets,
			"vehicle_model = "+q.arg(nullIfEmpty(patch.Vehicle.Model)),
			"vehicle_color = "+q.arg(nullIfEmpty(patch.Vehicle.Color)),
			"vehicle_registration = "+q.arg(nullIfEmpty(patch.Vehicle.Registration)),
		)
	}
	if patch.PassengerConfirmed != nil {
		sets = append(sets, "passenger_confirmed = "+q.arg(*patch.PassengerConfirmed))
	}
	if patch.DriverConfirmed != nil {
		sets = append(sets, "driver_confirmed = "+q.arg(*patch.DriverConfirmed))
	}
	if patch.StartedAt != nil {
		sets = append(sets, "started_at = "+q.arg(patch.StartedAt.UTC()))
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = "+q.arg(patch.CompletedAt.UTC()))
	}
	if patch.CancelledAt != nil {
		sets = append(sets, "cancelled_at = "+q.arg(patch.CancelledAt.UTC()))
	}
	if patch.CancelledBy != nil {
		sets = append(sets, "cancelled_by = "+q.arg(string(*patch.CancelledBy)))
	}
	if patch.CancellationReason != nil {
		sets = append(sets, "cancellation_reason = "+q.arg(*patch.CancellationReason))
	}
	return sets
}

func filterPredicates(q *query, filter ride.Filter) []string {
	where := []string{"true"}
	if filter.ID != "" {
		where = append(where, "id = "+q.arg(filter.ID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, s.String())
		}
		where = append(where, "status = ANY("+q.arg(statuses)+"::text[])")
	}
	if filter.PassengerID != "" {
		where = append(where, "passenger_id = "+q.arg(filter.PassengerID))
	}
	if filter.DriverID != "" {
		where = append(where, "driver_id = "+q.arg(filter.DriverID))
	}
	if filter.Participant != "" {
		p := q.arg(filter.Participant)
		where = append(where, "(passenger_id = "+p+" OR driver_id = "+p+")")
	}
	if filter.RequireBothConfirmed {
		where = append(where, "passenger_confirmed AND driver_confirmed")
	}
	switch filter.Unconfirmed {
	case ride.PartyDriver:
		where = append(where, "NOT driver_confirmed")
	case ride.PartyPassenger:
		where = append(where, "NOT passenger_confirmed")
	}
	return where
}

// ----- scanning -----

func scanRide(row pgx.Row) (*ride.Ride, error) {
	var (
		out                                    ride.Ride
		status                                 string
		pickupAddr, dropoffAddr                *string
		vehicleModel, vehicleColor, vehicleReg *string
		cancelledBy                            *string
	)
	err := row.Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt, &out.PassengerID, &out.DriverID, &status, &out.VehicleTypeID,
		&out.Pickup.Latitude, &out.Pickup.Longitude, &pickupAddr,
		&out.Dropoff.Latitude, &out.Dropoff.Longitude, &dropoffAddr,
		&out.DistanceKM, &out.Fare, &vehicleModel, &vehicleColor, &vehicleReg,
		&out.PassengerConfirmed, &out.DriverConfirmed, &out.StartedAt, &out.CompletedAt, &out.CancelledAt,
		&cancelledBy, &out.CancellationReason,
	)
	if err != nil {
		return nil, err
	}

	out.Status = ride.Status(status)
	out.Pickup.Address = deref(pickupAddr)
	out.Dropoff.Address = deref(dropoffAddr)
	if vehicleModel != nil || vehicleColor != nil || vehicleReg != nil {
		out.Vehicle = &ride.VehicleSnapshot{
			Model:        deref(vehicleModel),
			Color:        deref(vehicleColor),
			Registration: deref(vehicleReg),
		}
	}
	if cancelledBy != nil {
		party := ride.Party(*cancelledBy)
		out.CancelledBy = &party
	}
	return &out, nil
}

func nullIfEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
