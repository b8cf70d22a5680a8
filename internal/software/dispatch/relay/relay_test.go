package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishRelay(ctx context.Context, recipient, event string, payload json.RawMessage) error {
	args := m.Called(ctx, recipient, event, payload)
	return args.Error(0)
}

func (m *mockPublisher) Origin() string { return "instance-a" }

type localSessions struct {
	mu        sync.Mutex
	connected map[string]bool
	got       []contracts.RelayMessage
}

func (l *localSessions) SendLocal(_ context.Context, identity, event string, data json.RawMessage) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected[identity] {
		return false
	}
	l.got = append(l.got, contracts.RelayMessage{Recipient: identity, Event: event, Payload: data})
	return true
}

func newRelay(pub *mockPublisher, local *localSessions) *Relay {
	return New(logger.NewWithOutput("relay-test", "error", io.Discard), local, pub)
}

func relayed(t *testing.T, origin, recipient string) []byte {
	t.Helper()
	body, err := json.Marshal(contracts.RelayMessage{
		Origin:    origin,
		Recipient: recipient,
		Event:     contracts.EventNewOffer,
		Payload:   json.RawMessage(`{"offer":{"offer_id":"o1"}}`),
	})
	require.NoError(t, err)
	return body
}

func TestForward(t *testing.T) {
	pub := &mockPublisher{}
	payload := json.RawMessage(`{"ride_id":"r1"}`)
	pub.On("PublishRelay", mock.Anything, "p1", contracts.EventRideCompleted, payload).Return(nil).Once()
	pub.On("PublishRelay", mock.Anything, "p2", contracts.EventRideCompleted, payload).Return(errors.New("broker down")).Once()

	r := newRelay(pub, &localSessions{})
	assert.True(t, r.Forward(context.Background(), "p1", contracts.EventRideCompleted, payload))
	assert.False(t, r.Forward(context.Background(), "p2", contracts.EventRideCompleted, payload))
	pub.AssertExpectations(t)
}

func TestHandle_DeliversToLocalSession(t *testing.T) {
	local := &localSessions{connected: map[string]bool{"p1": true}}
	r := newRelay(&mockPublisher{}, local)

	require.NoError(t, r.Handle(context.Background(), relayed(t, "instance-b", "p1")))
	require.Len(t, local.got, 1)
	assert.Equal(t, contracts.EventNewOffer, local.got[0].Event)
	assert.JSONEq(t, `{"offer":{"offer_id":"o1"}}`, string(local.got[0].Payload))

	// not connected here: acknowledged and dropped
	require.NoError(t, r.Handle(context.Background(), relayed(t, "instance-b", "p2")))
	assert.Len(t, local.got, 1)
}

func TestHandle_IgnoresOwnMessages(t *testing.T) {
	local := &localSessions{connected: map[string]bool{"p1": true}}
	r := newRelay(&mockPublisher{}, local)

	require.NoError(t, r.Handle(context.Background(), relayed(t, "instance-a", "p1")))
	assert.Empty(t, local.got)
}

func TestHandle_RejectsMalformed(t *testing.T) {
	r := newRelay(&mockPublisher{}, &localSessions{})
	assert.Error(t, r.Handle(context.Background(), []byte("{not json")))
}
