package contracts

// RideRefPayload is the body of confirmStart and completeRide.
type RideRefPayload struct {
	RideID string `json:"ride_id"`
}

// CancelRidePayload is the body of "cancelRide".
type CancelRidePayload struct {
	RideID string `json:"ride_id"`
	Reason string `json:"reason,omitempty"`
}

// StartConfirmedPayload is sent to both parties on every confirmStart.
type StartConfirmedPayload struct {
	Ride        RideView `json:"ride"`
	ConfirmedBy string   `json:"confirmed_by"` // PASSENGER|DRIVER
	Started     bool     `json:"started"`
}

// RideCancelledPayload is sent to the counterpart of a cancellation.
type RideCancelledPayload struct {
	RideID      string `json:"ride_id"`
	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason,omitempty"`
}
