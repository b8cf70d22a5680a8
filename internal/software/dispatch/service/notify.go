package service

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
)

// notify delivers one notification; a false result is logged and counted, never returned.
func (engine *Engine) notify(ctx context.Context, identity, event string, payload any) bool {
	if identity == "" {
		return false
	}
	delivered := engine.transport.SendTo(ctx, identity, event, payload)
	engine.metrics.ObserveNotification(event, delivered)
	if !delivered {
		engine.logger.Debug(ctx, "notification_undelivered", "Recipient not reachable", map[string]any{
			"to":    identity,
			"event": event,
		})
	}
	return delivered
}

func (engine *Engine) broadcast(ctx context.Context, identities []string, event string, payload any) int {
	if len(identities) == 0 {
		return 0
	}
	delivered := engine.transport.BroadcastTo(ctx, identities, event, payload)
	engine.metrics.ObserveBroadcast(event, len(identities), delivered)
	return delivered
}

// publish sends a committed transition to the broker. Failures are logged only.
func (engine *Engine) publish(ctx context.Context, r ride.Ride, event ride.EventType) {
	msg := contracts.RideEventMessage{
		RideID:      r.ID,
		Event:       event.String(),
		Status:      r.Status.String(),
		PassengerID: r.PassengerID,
		DriverID:    r.DriverIDValue(),
		Fare:        r.Fare,
		Timestamp:   time.Now().UTC(),
		Envelope: contracts.Envelope{
			CorrelationID: logger.RequestID(ctx),
			Producer:      engine.cfg.Producer,
		},
	}
	if err := engine.publisher.PublishRideEvent(ctx, msg); err != nil {
		engine.logger.Warn(ctx, "ride_event_publish_failed", "Failed to publish ride event", map[string]any{
			"ride_id": r.ID,
			"event":   msg.Event,
			"error":   err.Error(),
		})
	}
}

// profile fetches a user profile for display purposes; absence is not an error.
func (engine *Engine) profile(ctx context.Context, userID string) *user.User {
	if engine.users == nil || userID == "" {
		return nil
	}
	u, err := engine.users.Get(ctx, userID)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			engine.logger.Warn(ctx, "profile_lookup_failed", "Failed to load user profile", map[string]any{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
		return nil
	}
	return u
}

// ErrorPayload builds the error notification sent to the acting connection.
func ErrorPayload(event string, err error) contracts.ErrorPayload {
	return contracts.ErrorPayload{
		Code:    apperr.Code(apperr.KindOf(err)),
		Message: apperr.Message(err),
		Event:   event,
	}
}
