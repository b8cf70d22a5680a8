package ride

import (
	"errors"
	"strings"
)

// EventType names an entry of the ride audit trail (`ride_events.event_type`).
type EventType string

const (
	EventRideRequested EventType = "RIDE_REQUESTED"
	EventOfferAccepted EventType = "OFFER_ACCEPTED"
	EventStartConfirm  EventType = "START_CONFIRMED"
	EventRideStarted   EventType = "RIDE_STARTED"
	EventRideCompleted EventType = "RIDE_COMPLETED"
	EventRideCancelled EventType = "RIDE_CANCELLED"
)

var ErrInvalidEventType = errors.New("invalid ride event type")

// ParseEventType normalizes (uppercases+trims) and validates an event type string.
func ParseEventType(input string) (EventType, error) {
	eventType := EventType(strings.ToUpper(strings.TrimSpace(input)))
	if eventType.Valid() {
		return eventType, nil
	}
	return "", ErrInvalidEventType
}

// Valid reports whether eventType is one of the allowed event type constants.
func (eventType EventType) Valid() bool {
	switch eventType {
	case EventRideRequested,
		EventOfferAccepted,
		EventStartConfirm,
		EventRideStarted,
		EventRideCompleted,
		EventRideCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the EventType.
func (eventType EventType) String() string {
	return string(eventType)
}
