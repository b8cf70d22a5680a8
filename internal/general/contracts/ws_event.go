package contracts

import "encoding/json"

// WSMessage is the frame format in both directions: {"type": ..., "data": ...}.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound events (client -> server).
const (
	EventRequestRide    = "requestRide"
	EventSubmitOffer    = "submitOffer"
	EventAcceptOffer    = "acceptOffer"
	EventConfirmStart   = "confirmStart"
	EventCancelRide     = "cancelRide"
	EventCompleteRide   = "completeRide"
	EventUpdateLocation = "updateLocation"
	EventNearbyDrivers  = "nearbyDrivers"
	EventAuth           = "auth"
	EventPing           = "ping"
)

// Outbound events (server -> client).
const (
	EventRideRequested        = "rideRequested"
	EventNewRideRequest       = "newRideRequest"
	EventOfferSubmitted       = "offerSubmitted"
	EventNewOffer             = "newOffer"
	EventOfferAccepted        = "offerAccepted"
	EventRideAcceptedSuccess  = "rideAcceptedSuccess"
	EventOfferRejected        = "offerRejected"
	EventStartConfirmed       = "startConfirmed"
	EventRideStarted          = "rideStarted"
	EventRideCancelledSuccess = "rideCancelledSuccess"
	EventRideCancelled        = "rideCancelled"
	EventRideCompleted        = "rideCompleted"
	EventNearbyDriversResult  = "nearbyDrivers"
	EventConnected            = "connected"
	EventPong                 = "pong"
	EventError                = "error"
)

// ErrorPayload is sent to the acting connection when an inbound event fails.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// ConnectedPayload acknowledges a successful auth frame.
type ConnectedPayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}
