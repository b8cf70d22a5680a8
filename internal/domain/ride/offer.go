package ride

import (
	"errors"
	"strings"
	"time"
)

// OfferStatus is the state of a driver's bid.
type OfferStatus string

const (
	OfferPending  OfferStatus = "PENDING"
	OfferAccepted OfferStatus = "ACCEPTED"
	OfferRejected OfferStatus = "REJECTED"
)

// Valid reports whether the offer status is known.
func (status OfferStatus) Valid() bool {
	switch status {
	case OfferPending, OfferAccepted, OfferRejected:
		return true
	default:
		return false
	}
}

// String returns the string representation of the OfferStatus.
func (status OfferStatus) String() string {
	return string(status)
}

// Terminal reports whether the offer can no longer change.
func (status OfferStatus) Terminal() bool {
	return status == OfferAccepted || status == OfferRejected
}

// Offer is a driver's priced bid on a REQUESTED ride (`ride_offers` table).
type Offer struct {
	ID        string
	RideID    string
	DriverID  string
	Price     float64
	Status    OfferStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	ErrOfferDriverRequired = errors.New("offer driver id is required")
	ErrPriceMustBePositive = errors.New("offer price must be positive")
)

// NewOffer creates a PENDING offer.
func NewOffer(id, rideID, driverID string, price float64) (*Offer, error) {
	if rideID = strings.TrimSpace(rideID); rideID == "" {
		return nil, ErrRideIDRequired
	}
	if driverID = strings.TrimSpace(driverID); driverID == "" {
		return nil, ErrOfferDriverRequired
	}
	if price <= 0 {
		return nil, ErrPriceMustBePositive
	}

	now := time.Now().UTC()
	return &Offer{
		ID:        id,
		RideID:    rideID,
		DriverID:  driverID,
		Price:     price,
		Status:    OfferPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
