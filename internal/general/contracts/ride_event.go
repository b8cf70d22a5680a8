package contracts

import "time"

// RideEventMessage is published after every committed ride transition.
// Routing key: "ride.status.{status}" on ExchangeRideTopic.
type RideEventMessage struct {
	RideID      string    `json:"ride_id"`
	Event       string    `json:"event"`  // RIDE_REQUESTED|OFFER_ACCEPTED|RIDE_STARTED|RIDE_COMPLETED|RIDE_CANCELLED
	Status      string    `json:"status"` // REQUESTED|ACCEPTED|IN_PROGRESS|COMPLETED|CANCELLED
	PassengerID string    `json:"passenger_id"`
	DriverID    string    `json:"driver_id,omitempty"`
	Fare        *float64  `json:"fare,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Envelope
}
