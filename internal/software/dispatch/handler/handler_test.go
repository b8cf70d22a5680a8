package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/memstore"
	"ride-dispatch/internal/general/metrics"
	"ride-dispatch/internal/general/websocket"
	"ride-dispatch/internal/software/dispatch/offers"
	"ride-dispatch/internal/software/dispatch/presence"
	"ride-dispatch/internal/software/dispatch/rides"
	"ride-dispatch/internal/software/dispatch/service"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	srv   *httptest.Server
	auth  *jwt.Manager
	store *memstore.Store
}

func newStack(t *testing.T, checks map[string]HealthCheck) *stack {
	t.Helper()
	log := logger.NewWithOutput("handler-test", "error", io.Discard)
	store := memstore.New()
	auth, err := jwt.NewManager("handler-secret", time.Hour)
	require.NoError(t, err)

	machine := rides.New(log, store, store.Rides(), store.Offers(), rides.Config{})
	ledger := offers.New(log, store, store.Rides(), store.Offers(), store.Users(), machine, 0)
	directory := presence.NewDirectory(store.Users(), log)
	t.Cleanup(directory.Close)

	hub := websocket.NewHub(log, auth, websocket.Options{
		AuthTimeout:  time.Second,
		PingInterval: time.Second,
		PongWait:     2 * time.Second,
		WriteTimeout: time.Second,
	}, nil)
	t.Cleanup(hub.Close)

	engine := service.NewEngine(log, machine, ledger, directory, store.Users(), hub,
		service.Config{RadiusKM: 10, DefaultRating: 4.5},
		service.WithMetrics(metrics.New(store.Rides(), log)))
	hub.SetHandler(NewWSRouter(engine, log))

	h := NewDispatchHTTPHandler(engine, log, auth, hub, store.Users(), checks)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &stack{srv: srv, auth: auth, store: store}
}

func (s *stack) token(t *testing.T, userID string, role user.Role, vehicleTypeID string) string {
	t.Helper()
	tok, _, err := s.auth.IssueUserToken(userID, role, vehicleTypeID)
	require.NoError(t, err)
	return tok
}

func (s *stack) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestCreateToken(t *testing.T) {
	s := newStack(t, nil)

	body := `{"user_id":"d1","role":"driver","vehicle_type_id":"economy","name":"Dana"}`
	resp, err := http.Post(s.srv.URL+"/tokens", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, user.RoleDriver, out.Role)
	claims, err := s.auth.ParseAndValidate(out.Token)
	require.NoError(t, err)
	assert.Equal(t, "economy", claims.VehicleTypeID)

	profile, err := s.store.Users().Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "Dana", profile.Name)

	for _, bad := range []string{
		`{"user_id":"x","role":"pilot"}`,
		`{"role":"PASSENGER"}`,
		`{"user_id":"d2","role":"DRIVER"}`,
		`not json`,
	} {
		resp, err := http.Post(s.srv.URL+"/tokens", "application/json", strings.NewReader(bad))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, bad)
	}
}

func TestHealth(t *testing.T) {
	ok := newStack(t, map[string]HealthCheck{"store": func(context.Context) error { return nil }})
	resp := ok.get(t, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])

	down := newStack(t, map[string]HealthCheck{"broker": func(context.Context) error { return errors.New("not connected") }})
	resp = down.get(t, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "degraded", decodeBody(t, resp)["status"])
}

func TestHistoryAndNearby_Auth(t *testing.T) {
	s := newStack(t, nil)
	passengerToken := s.token(t, "p1", user.RolePassenger, "")
	driverToken := s.token(t, "d1", user.RoleDriver, "economy")

	assert.Equal(t, http.StatusUnauthorized, s.get(t, "/rides/history", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, s.get(t, "/rides/history", "garbage").StatusCode)

	resp := s.get(t, "/rides/history", passengerToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody(t, resp)["rides"])

	assert.Equal(t, http.StatusBadRequest, s.get(t, "/rides/history?limit=x", driverToken).StatusCode)

	assert.Equal(t, http.StatusForbidden, s.get(t, "/drivers/nearby?vehicle_type_id=economy", driverToken).StatusCode)
	assert.Equal(t, http.StatusBadRequest, s.get(t, "/drivers/nearby", passengerToken).StatusCode)

	resp = s.get(t, "/drivers/nearby?vehicle_type_id=economy", passengerToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["fallback"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newStack(t, nil)
	s.get(t, "/health", "")

	resp := s.get(t, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ride_dispatch_http_requests_total")
	assert.Contains(t, string(raw), "ride_dispatch_rides_by_status")
}

// ----- websocket flow -----

type client struct {
	t    *testing.T
	conn *gorillaws.Conn
}

func (s *stack) dial(t *testing.T, token string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	c := &client{t: t, conn: conn}
	c.send("auth", map[string]string{"token": "Bearer " + token})
	c.expect(contracts.EventConnected)
	return c
}

func (c *client) send(event string, data any) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(contracts.WSMessage{Type: event, Data: raw}))
}

// expect skips frames until one of the given type arrives.
func (c *client) expect(event string) json.RawMessage {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg contracts.WSMessage
		require.NoError(c.t, c.conn.ReadJSON(&msg), "waiting for %s", event)
		if msg.Type == event {
			return msg.Data
		}
	}
}

// sync waits until the server handled everything this client sent so far.
func (c *client) sync() {
	c.t.Helper()
	c.send("noop", map[string]string{})
	c.expect(contracts.EventError)
}

func TestWebSocket_RideFlow(t *testing.T) {
	s := newStack(t, nil)
	driver := s.dial(t, s.token(t, "d1", user.RoleDriver, "economy"))
	passenger := s.dial(t, s.token(t, "p1", user.RolePassenger, ""))

	driver.send(contracts.EventUpdateLocation, contracts.UpdateLocationPayload{Lat: 0.01, Lng: 0.01})
	driver.sync()

	passenger.send(contracts.EventRequestRide, contracts.RequestRidePayload{
		Pickup:        contracts.GeoPoint{Lat: 0, Lng: 0},
		Dropoff:       contracts.GeoPoint{Lat: 0.05, Lng: 0.05},
		VehicleTypeID: "economy",
	})
	var ack contracts.RideRequestedPayload
	require.NoError(t, json.Unmarshal(passenger.expect(contracts.EventRideRequested), &ack))
	assert.Equal(t, 1, ack.CandidateCount)

	var req contracts.NewRideRequestPayload
	require.NoError(t, json.Unmarshal(driver.expect(contracts.EventNewRideRequest), &req))
	rideID := req.Ride.RideID
	require.NotEmpty(t, rideID)

	driver.send(contracts.EventSubmitOffer, contracts.SubmitOfferPayload{RideID: rideID, Price: 100})
	var offer contracts.NewOfferPayload
	require.NoError(t, json.Unmarshal(passenger.expect(contracts.EventNewOffer), &offer))
	assert.InDelta(t, 100, offer.Offer.Price, 0.001)

	passenger.send(contracts.EventAcceptOffer, contracts.AcceptOfferPayload{OfferID: offer.Offer.OfferID})
	passenger.expect(contracts.EventRideAcceptedSuccess)
	driver.expect(contracts.EventOfferAccepted)

	passenger.send(contracts.EventConfirmStart, contracts.RideRefPayload{RideID: rideID})
	driver.expect(contracts.EventStartConfirmed)
	driver.send(contracts.EventConfirmStart, contracts.RideRefPayload{RideID: rideID})
	passenger.expect(contracts.EventRideStarted)

	driver.send(contracts.EventCompleteRide, contracts.RideRefPayload{RideID: rideID})
	var done contracts.RideView
	require.NoError(t, json.Unmarshal(passenger.expect(contracts.EventRideCompleted), &done))
	assert.Equal(t, "COMPLETED", done.Status)
}

func TestWebSocket_ErrorsKeepConnectionOpen(t *testing.T) {
	s := newStack(t, nil)
	passenger := s.dial(t, s.token(t, "p1", user.RolePassenger, ""))

	passenger.send(contracts.EventCancelRide, contracts.CancelRidePayload{RideID: "missing"})
	var e contracts.ErrorPayload
	require.NoError(t, json.Unmarshal(passenger.expect(contracts.EventError), &e))
	assert.Equal(t, "NOT_FOUND", e.Code)
	assert.Equal(t, contracts.EventCancelRide, e.Event)

	passenger.send(contracts.EventSubmitOffer, contracts.SubmitOfferPayload{RideID: "x", Price: 10})
	require.NoError(t, json.Unmarshal(passenger.expect(contracts.EventError), &e))
	assert.Equal(t, "FORBIDDEN", e.Code)

	passenger.send(contracts.EventNearbyDrivers, contracts.NearbyDriversQuery{VehicleTypeID: "economy"})
	var nearby contracts.NearbyDriversPayload
	require.NoError(t, json.Unmarshal(passenger.expect(contracts.EventNearbyDriversResult), &nearby))
	assert.True(t, nearby.Fallback)
}
