package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ride-dispatch/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Publisher is the part of Client the message publishers need.
type Publisher interface {
	PublishMessage(ctx context.Context, exchange, routingKey string, body []byte) error
}

// PublishMessage publishes a persistent JSON message and waits for the broker confirm.
func (client *Client) PublishMessage(ctx context.Context, exchange, routingKey string, body []byte) error {
	client.mu.RLock()
	ch := client.pubChan
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() || ch == nil || ch.IsClosed() {
		return errNotConnected
	}

	client.pubMu.Lock()
	defer client.pubMu.Unlock()
	confirms := client.pubConfirms

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := ch.PublishWithContext(ctx, exchange, routingKey, true /* mandatory */, false, /* immediate */
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("rabbitmq: publish to %s: %w", exchange, err)
	}

	select {
	case c, ok := <-confirms:
		if !ok {
			return errNotConnected
		}
		if !c.Ack {
			return errors.New("rabbitmq: publish not acknowledged")
		}
		return nil
	case <-ctx.Done():
		// drain one confirm so the stream stays aligned with publishes
		select {
		case <-confirms:
		case <-time.After(2 * time.Second):
		}
		return ctx.Err()
	}
}

// RideEventPublisher sends committed ride transitions to ride_topic.
type RideEventPublisher struct {
	pub      Publisher
	producer string
}

func NewRideEventPublisher(pub Publisher, producer string) *RideEventPublisher {
	return &RideEventPublisher{pub: pub, producer: producer}
}

// RideStatusRoutingKey is ride.status.<status>, lower-cased.
func RideStatusRoutingKey(status string) string {
	return contracts.RouteRideStatusPrefix + strings.ToLower(strings.TrimSpace(status))
}

func (p *RideEventPublisher) PublishRideEvent(ctx context.Context, msg contracts.RideEventMessage) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	if msg.Producer == "" {
		msg.Producer = p.producer
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal ride event: %w", err)
	}
	return p.pub.PublishMessage(ctx, contracts.ExchangeRideTopic, RideStatusRoutingKey(msg.Status), body)
}

// RelayPublisher fans a notification out to every instance.
type RelayPublisher struct {
	pub    Publisher
	origin string
}

func NewRelayPublisher(pub Publisher, origin string) *RelayPublisher {
	return &RelayPublisher{pub: pub, origin: origin}
}

// Origin is the instance id stamped on relayed messages.
func (p *RelayPublisher) Origin() string { return p.origin }

func (p *RelayPublisher) PublishRelay(ctx context.Context, recipient, event string, payload json.RawMessage) error {
	body, err := json.Marshal(contracts.RelayMessage{
		Origin:    p.origin,
		Recipient: recipient,
		Event:     event,
		Payload:   payload,
		Envelope:  contracts.Envelope{Producer: p.origin, SentAt: time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("marshal relay message: %w", err)
	}
	return p.pub.PublishMessage(ctx, contracts.ExchangeDispatchNotify, "", body)
}
