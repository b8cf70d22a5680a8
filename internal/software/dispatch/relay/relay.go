// Package relay forwards notifications between dispatch instances for
// identities connected to a different instance than the one that produced them.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	publishTimeout = 3 * time.Second
	prefetch       = 64
)

// LocalSender delivers to sessions of this instance only; *websocket.Hub implements it.
type LocalSender interface {
	SendLocal(ctx context.Context, identity, event string, data json.RawMessage) bool
}

// Publisher fans a notification out to every instance; *rabbitmq.RelayPublisher implements it.
type Publisher interface {
	PublishRelay(ctx context.Context, recipient, event string, payload json.RawMessage) error
	Origin() string
}

type Relay struct {
	logger *logger.Logger
	local  LocalSender
	pub    Publisher
}

func New(logger *logger.Logger, local LocalSender, pub Publisher) *Relay {
	return &Relay{logger: logger, local: local, pub: pub}
}

// Forward publishes a notification for an identity with no local session.
// It has the websocket.Fallback signature.
func (r *Relay) Forward(ctx context.Context, identity, event string, payload json.RawMessage) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.pub.PublishRelay(ctx, identity, event, payload); err != nil {
		r.logger.Warn(ctx, "relay_publish_failed", "Failed to relay notification", map[string]any{
			"to":    identity,
			"event": event,
			"error": err.Error(),
		})
		return false
	}
	return true
}

// Handle delivers one relayed notification if its recipient is connected here.
// Messages published by this instance are ignored.
func (r *Relay) Handle(ctx context.Context, body []byte) error {
	var msg contracts.RelayMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode relay message: %w", err)
	}
	if msg.Origin == r.pub.Origin() || msg.Recipient == "" {
		return nil
	}

	if r.local.SendLocal(ctx, msg.Recipient, msg.Event, msg.Payload) {
		r.logger.Debug(ctx, "relay_delivered", "Delivered relayed notification", map[string]any{
			"to":     msg.Recipient,
			"event":  msg.Event,
			"origin": msg.Origin,
		})
	}
	return nil
}

func (r *Relay) handleDelivery(ctx context.Context, d amqp.Delivery) error {
	if err := r.Handle(ctx, d.Body); err != nil {
		r.logger.Warn(ctx, "relay_message_dropped", "Dropping malformed relay message", map[string]any{"error": err.Error()})
		return err
	}
	return nil
}

// Run consumes this instance's relay queue until ctx ends, reconnecting on channel loss.
func (r *Relay) Run(ctx context.Context, client *rabbitmq.Client) error {
	queue := contracts.QueueDispatchNotifyPrefix + r.pub.Origin()
	r.logger.Info(ctx, "relay_started", "Consuming relayed notifications", map[string]any{"queue": queue})

	return rabbitmq.RunConsumer(ctx, func(ctx context.Context) error {
		return client.ConsumeFanout(ctx, contracts.ExchangeDispatchNotify, queue, prefetch, r.handleDelivery)
	}, func(err error) {
		r.logger.Warn(ctx, "relay_consumer_restart", "Relay consumer stopped, retrying", map[string]any{"error": err.Error()})
	})
}
