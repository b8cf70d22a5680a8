package postgres

import (
	"context"
	"fmt"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OfferRepo persists driver bids in ride_offers.
type OfferRepo struct {
	pool *pgxpool.Pool
}

// NewOfferRepo constructs a new OfferRepo.
func NewOfferRepo(pool *pgxpool.Pool) *OfferRepo {
	return &OfferRepo{pool: pool}
}

const offerColumns = `id, ride_id, driver_id, price, status, created_at, updated_at`

// CreateIfRideRequested inserts the offer only while the ride row is REQUESTED.
// The ride row is share-locked so a concurrent assignment waits for this insert.
func (repo *OfferRepo) CreateIfRideRequested(ctx context.Context, o *ride.Offer) (bool, error) {
	if o == nil {
		return false, apperr.InvalidInput("offer is required")
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	db := conn(ctx, repo.pool)

	tag, err := db.Exec(ctx, `
		INSERT INTO ride_offers (id, ride_id, driver_id, price, status, created_at, updated_at)
		SELECT $1::text, r.id, $3::text, $4::float8, $5::text, $6::timestamptz, $6::timestamptz
		FROM rides r
		WHERE r.id = $2 AND r.status = 'REQUESTED'
		FOR SHARE OF r
	`, o.ID, o.RideID, o.DriverID, o.Price, o.Status.String(), o.CreatedAt.UTC())
	if err != nil {
		return false, mapError(err, "insert offer")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// distinguish a missing ride from one that already left REQUESTED
	var status string
	if err := db.QueryRow(ctx, `SELECT status FROM rides WHERE id = $1`, o.RideID).Scan(&status); err != nil {
		return false, mapError(err, "ride "+o.RideID)
	}
	return false, nil
}

// Get fetches an offer by id.
func (repo *OfferRepo) Get(ctx context.Context, id string) (*ride.Offer, error) {
	row := conn(ctx, repo.pool).QueryRow(ctx, `SELECT `+offerColumns+` FROM ride_offers WHERE id = $1`, id)
	o, err := scanOffer(row)
	if err != nil {
		return nil, mapError(err, "offer "+id)
	}
	return o, nil
}

// ListByRide returns the offers of a ride, oldest first.
func (repo *OfferRepo) ListByRide(ctx context.Context, rideID string) ([]*ride.Offer, error) {
	rows, err := conn(ctx, repo.pool).Query(ctx,
		`SELECT `+offerColumns+` FROM ride_offers WHERE ride_id = $1 ORDER BY created_at, id`, rideID)
	if err != nil {
		return nil, mapError(err, "query offers")
	}
	return collectOffers(rows)
}

// SettleAccepted accepts winnerID and rejects its live siblings. Both statements share the caller's tx.
func (repo *OfferRepo) SettleAccepted(ctx context.Context, rideID, winnerID string) ([]*ride.Offer, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE ride_offers
		SET status = 'ACCEPTED', updated_at = now()
		WHERE id = $1 AND ride_id = $2 AND status = 'PENDING'
	`, winnerID, rideID)
	if err != nil {
		return nil, mapError(err, "accept offer")
	}
	if tag.RowsAffected() != 1 {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM ride_offers WHERE id = $1 AND ride_id = $2`, winnerID, rideID).Scan(&status)
		if err != nil {
			return nil, mapError(err, "offer "+winnerID)
		}
		return nil, apperr.InvalidState("offer %s is %s", winnerID, status)
	}

	rows, err := tx.Query(ctx, `
		UPDATE ride_offers
		SET status = 'REJECTED', updated_at = now()
		WHERE ride_id = $1 AND id <> $2 AND status IN ('PENDING', 'ACCEPTED')
		RETURNING `+offerColumns, rideID, winnerID)
	if err != nil {
		return nil, mapError(err, "reject sibling offers")
	}
	return collectOffers(rows)
}

// RejectPending rejects every PENDING offer of the ride.
func (repo *OfferRepo) RejectPending(ctx context.Context, rideID string) ([]*ride.Offer, error) {
	rows, err := conn(ctx, repo.pool).Query(ctx, `
		UPDATE ride_offers
		SET status = 'REJECTED', updated_at = now()
		WHERE ride_id = $1 AND status = 'PENDING'
		RETURNING `+offerColumns, rideID)
	if err != nil {
		return nil, mapError(err, "reject pending offers")
	}
	return collectOffers(rows)
}

func collectOffers(rows pgx.Rows) ([]*ride.Offer, error) {
	defer rows.Close()

	var out []*ride.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "rows error")
	}
	return out, nil
}

func scanOffer(row pgx.Row) (*ride.Offer, error) {
	var (
		o      ride.Offer
		status string
	)
	if err := row.Scan(&o.ID, &o.RideID, &o.DriverID, &o.Price, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = ride.OfferStatus(status)
	return &o, nil
}
