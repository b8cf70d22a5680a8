package rabbitmq

import (
	"fmt"

	"ride-dispatch/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

// declareTopology declares the durable exchanges and the ride status queue.
// Per-instance relay queues are declared by their consumer.
func declareTopology(ch *amqp.Channel) error {
	exchanges := []struct {
		name string
		kind string
	}{
		{contracts.ExchangeRideTopic, amqp.ExchangeTopic},
		{contracts.ExchangeDispatchNotify, amqp.ExchangeFanout},
	}
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	if _, err := ch.QueueDeclare(contracts.QueueRideStatus, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", contracts.QueueRideStatus, err)
	}
	if err := ch.QueueBind(contracts.QueueRideStatus, contracts.RouteRideStatusAll, contracts.ExchangeRideTopic, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", contracts.QueueRideStatus, contracts.ExchangeRideTopic, err)
	}
	return nil
}
