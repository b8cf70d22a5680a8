package contracts

import "encoding/json"

// RelayMessage carries a notification for an identity that is not connected to the publishing instance.
// Exchange: ExchangeDispatchNotify (fanout, no routing key).
type RelayMessage struct {
	Origin    string          `json:"origin"` // instance id of the publisher
	Recipient string          `json:"recipient"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Envelope
}
