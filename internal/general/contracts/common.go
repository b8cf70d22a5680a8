package contracts

import "time"

// Envelope adds cross-cutting headers all broker messages may carry.
type Envelope struct {
	CorrelationID string    `json:"correlation_id,omitempty"` // Correlation for tracing across instances
	Producer      string    `json:"producer,omitempty"`       // Producer instance, e.g. "dispatch-service@host"
	SentAt        time.Time `json:"sent_at,omitempty"`        // ISO-8601 send time (UTC)
}

type GeoPoint struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// VehicleInfo is the vehicle snapshot as shown to passengers.
type VehicleInfo struct {
	Model        string `json:"model,omitempty"`
	Color        string `json:"color,omitempty"`
	Registration string `json:"registration,omitempty"`
}

type DriverBrief struct {
	DriverID string       `json:"driver_id"`
	Name     string       `json:"name,omitempty"`
	Rating   float64      `json:"rating,omitempty"`
	Vehicle  *VehicleInfo `json:"vehicle,omitempty"`
}

// RideView is the ride representation carried by every ride-related notification.
type RideView struct {
	RideID             string       `json:"ride_id"`
	Status             string       `json:"status"`
	PassengerID        string       `json:"passenger_id"`
	DriverID           string       `json:"driver_id,omitempty"`
	VehicleTypeID      string       `json:"vehicle_type_id"`
	Pickup             GeoPoint     `json:"pickup"`
	Dropoff            GeoPoint     `json:"dropoff"`
	DistanceKM         *float64     `json:"distance_km,omitempty"`
	Fare               *float64     `json:"fare,omitempty"`
	Vehicle            *VehicleInfo `json:"vehicle,omitempty"`
	PassengerConfirmed bool         `json:"passenger_confirmed"`
	DriverConfirmed    bool         `json:"driver_confirmed"`
	CreatedAt          time.Time    `json:"created_at"`
	StartedAt          *time.Time   `json:"started_at,omitempty"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`
	CancelledAt        *time.Time   `json:"cancelled_at,omitempty"`
	CancelledBy        string       `json:"cancelled_by,omitempty"`
	CancellationReason string       `json:"cancellation_reason,omitempty"`
}

// OfferView is a driver's bid as shown to both sides.
type OfferView struct {
	OfferID   string    `json:"offer_id"`
	RideID    string    `json:"ride_id"`
	DriverID  string    `json:"driver_id"`
	Price     float64   `json:"price"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
