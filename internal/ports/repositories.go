package ports

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RideStore persists rides. Every status change goes through UpdateWhere.
type RideStore interface {
	Create(ctx context.Context, r *ride.Ride) error
	// Get returns an apperr NotFound error when the ride does not exist.
	Get(ctx context.Context, id string) (*ride.Ride, error)
	// UpdateWhere applies patch to the ride named by filter.ID only if the stored row
	// still matches filter. It reports false when the predicate failed.
	UpdateWhere(ctx context.Context, filter ride.Filter, patch ride.Patch) (bool, error)
	// ListWhere returns matching rides, newest first.
	ListWhere(ctx context.Context, filter ride.Filter, limit int) ([]*ride.Ride, error)
	AppendEvent(ctx context.Context, e *ride.Event) error
}

// OfferStore persists driver bids.
type OfferStore interface {
	// CreateIfRideRequested inserts the offer only while its ride is REQUESTED.
	// It reports false when the ride exists but is in another status.
	CreateIfRideRequested(ctx context.Context, o *ride.Offer) (bool, error)
	Get(ctx context.Context, id string) (*ride.Offer, error)
	ListByRide(ctx context.Context, rideID string) ([]*ride.Offer, error)
	// SettleAccepted marks winnerID ACCEPTED and every other non-rejected offer of the
	// ride REJECTED, returning the offers it rejected.
	SettleAccepted(ctx context.Context, rideID, winnerID string) ([]*ride.Offer, error)
	// RejectPending rejects every PENDING offer of the ride.
	RejectPending(ctx context.Context, rideID string) ([]*ride.Offer, error)
}

// UserStore reads profiles owned by the account service.
type UserStore interface {
	Get(ctx context.Context, id string) (*user.User, error)
}

// PresenceMirror copies presence changes to durable or shared storage.
// Calls are fire-and-forget from the directory's point of view.
type PresenceMirror interface {
	MarkOnline(ctx context.Context, userID, handle string) error
	MarkOffline(ctx context.Context, userID string) error
	UpdatePosition(ctx context.Context, userID string, point geo.Point) error
}

// RideStats feeds operational gauges; it is not used by the dispatch core.
type RideStats interface {
	CountByStatus(ctx context.Context) (map[ride.Status]int, error)
	CancellationRateBetween(ctx context.Context, start, end time.Time) (float64, error)
}

// UserSeeder provisions profiles for development token minting.
type UserSeeder interface {
	Upsert(ctx context.Context, u *user.User) error
}
