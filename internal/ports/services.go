package ports

import (
	"context"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/general/contracts"
)

// Transport delivers outbound notifications to connected identities.
type Transport interface {
	// SendTo delivers at most once; false means the identity was not reachable.
	SendTo(ctx context.Context, identity, event string, payload any) bool
	// BroadcastTo is SendTo for each identity; it returns how many were delivered.
	BroadcastTo(ctx context.Context, identities []string, event string, payload any) int
}

// EventPublisher publishes committed ride transitions to the broker (best effort).
type EventPublisher interface {
	PublishRideEvent(ctx context.Context, msg contracts.RideEventMessage) error
}

// NopPublisher drops every event; used when the broker is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishRideEvent(context.Context, contracts.RideEventMessage) error { return nil }

// NopMirror ignores presence changes.
type NopMirror struct{}

func (NopMirror) MarkOnline(context.Context, string, string) error        { return nil }
func (NopMirror) MarkOffline(context.Context, string) error               { return nil }
func (NopMirror) UpdatePosition(context.Context, string, geo.Point) error { return nil }
