package service

import (
	"context"
	"io"
	"sync"
	"testing"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/memstore"
	"ride-dispatch/internal/general/metrics"
	"ride-dispatch/internal/general/redis"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/software/dispatch/offers"
	"ride-dispatch/internal/software/dispatch/presence"
	"ride-dispatch/internal/software/dispatch/rides"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	to      string
	event   string
	payload any
}

// fakeTransport delivers to every identity marked online and records it.
type fakeTransport struct {
	mu     sync.Mutex
	online map[string]bool
	sent   []delivery
}

func newFakeTransport(online ...string) *fakeTransport {
	t := &fakeTransport{online: map[string]bool{}}
	for _, id := range online {
		t.online[id] = true
	}
	return t
}

func (t *fakeTransport) SendTo(_ context.Context, identity, event string, payload any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.online[identity] {
		return false
	}
	t.sent = append(t.sent, delivery{to: identity, event: event, payload: payload})
	return true
}

func (t *fakeTransport) BroadcastTo(ctx context.Context, identities []string, event string, payload any) int {
	n := 0
	for _, id := range identities {
		if t.SendTo(ctx, id, event, payload) {
			n++
		}
	}
	return n
}

func (t *fakeTransport) to(identity, event string) []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []any
	for _, d := range t.sent {
		if d.to == identity && d.event == event {
			out = append(out, d.payload)
		}
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []contracts.RideEventMessage
}

func (p *fakePublisher) PublishRideEvent(_ context.Context, msg contracts.RideEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
	return nil
}

func (p *fakePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Event)
	}
	return out
}

type harness struct {
	engine    *Engine
	store     *memstore.Store
	directory *presence.Directory
	transport *fakeTransport
	publisher *fakePublisher
	metrics   *metrics.Metrics
}

var (
	passenger = Actor{ID: "p1", Role: user.RolePassenger, Handle: "h-p1"}
	driver1   = Actor{ID: "d1", Role: user.RoleDriver, VehicleTypeID: "economy", Handle: "h-d1"}
	driver2   = Actor{ID: "d2", Role: user.RoleDriver, VehicleTypeID: "economy", Handle: "h-d2"}

	pickup   = contracts.GeoPoint{Lat: 0, Lng: 0}
	dropoff  = contracts.GeoPoint{Lat: 0.05, Lng: 0.05}
	nearD1   = geo.Point{Latitude: 0.01, Longitude: 0.01}
	farD2    = geo.Point{Latitude: 1, Longitude: 1}
	economy  = "economy"
	testRide = contracts.RequestRidePayload{Pickup: pickup, Dropoff: dropoff, VehicleTypeID: economy}
)

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	return newMirroredHarness(t, nil, opts...)
}

func newMirroredHarness(t *testing.T, mirror ports.PresenceMirror, opts ...Option) *harness {
	t.Helper()
	log := logger.NewWithOutput("service-test", "error", io.Discard)
	store := memstore.New()
	machine := rides.New(log, store, store.Rides(), store.Offers(), rides.Config{})
	ledger := offers.New(log, store, store.Rides(), store.Offers(), store.Users(), machine, 0)
	directory := presence.NewDirectory(mirror, log)
	t.Cleanup(directory.Close)

	h := &harness{
		store:     store,
		directory: directory,
		transport: newFakeTransport("p1", "d1", "d2"),
		publisher: &fakePublisher{},
		metrics:   metrics.New(nil, log),
	}
	opts = append([]Option{WithPublisher(h.publisher), WithMetrics(h.metrics)}, opts...)
	h.engine = NewEngine(log, machine, ledger, directory, store.Users(), h.transport,
		Config{RadiusKM: 10, DefaultRating: 4.5}, opts...)

	ctx := context.Background()
	for _, a := range []Actor{passenger, driver1, driver2} {
		require.NoError(t, h.engine.Connect(ctx, a))
	}
	require.NoError(t, h.engine.UpdateLocation(ctx, driver1, contracts.UpdateLocationPayload{Lat: nearD1.Latitude, Lng: nearD1.Longitude}))
	require.NoError(t, h.engine.UpdateLocation(ctx, driver2, contracts.UpdateLocationPayload{Lat: farD2.Latitude, Lng: farD2.Longitude}))
	return h
}

func (h *harness) acceptedRide(t *testing.T) ride.Ride {
	t.Helper()
	ctx := context.Background()
	r, err := h.engine.RequestRide(ctx, passenger, testRide)
	require.NoError(t, err)
	o, err := h.engine.SubmitOffer(ctx, driver1, contracts.SubmitOfferPayload{RideID: r.ID, Price: 100})
	require.NoError(t, err)
	res, err := h.engine.AcceptOffer(ctx, passenger, contracts.AcceptOfferPayload{OfferID: o.ID})
	require.NoError(t, err)
	return res.Ride
}

func TestRequestRide_BroadcastWithinRadius(t *testing.T) {
	h := newHarness(t)

	r, err := h.engine.RequestRide(context.Background(), passenger, testRide)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusRequested, r.Status)

	got := h.transport.to("p1", contracts.EventRideRequested)
	require.Len(t, got, 1)
	ack := got[0].(contracts.RideRequestedPayload)
	assert.Equal(t, 1, ack.CandidateCount)
	assert.Equal(t, r.ID, ack.Ride.RideID)

	reqs := h.transport.to("d1", contracts.EventNewRideRequest)
	require.Len(t, reqs, 1)
	dist := reqs[0].(contracts.NewRideRequestPayload).DistanceKM
	require.NotNil(t, dist)
	assert.InDelta(t, 1.57, *dist, 0.01)
	assert.Empty(t, h.transport.to("d2", contracts.EventNewRideRequest))

	assert.Equal(t, []string{"RIDE_REQUESTED"}, h.publisher.names())
}

func TestRequestRide_WiderRadiusReachesBoth(t *testing.T) {
	h := newHarness(t)

	in := testRide
	in.RadiusKM = 200
	_, err := h.engine.RequestRide(context.Background(), passenger, in)
	require.NoError(t, err)

	assert.Len(t, h.transport.to("d1", contracts.EventNewRideRequest), 1)
	assert.Len(t, h.transport.to("d2", contracts.EventNewRideRequest), 1)
}

func TestRequestRide_Targeted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	in := testRide
	in.DriverID = "d2"
	_, err := h.engine.RequestRide(ctx, passenger, in)
	require.NoError(t, err)
	assert.Len(t, h.transport.to("d2", contracts.EventNewRideRequest), 1)
	assert.Empty(t, h.transport.to("d1", contracts.EventNewRideRequest))

	in.DriverID = "offline-driver"
	_, err = h.engine.RequestRide(ctx, passenger, in)
	require.NoError(t, err)
	acks := h.transport.to("p1", contracts.EventRideRequested)
	require.Len(t, acks, 2)
	assert.Equal(t, 0, acks[1].(contracts.RideRequestedPayload).CandidateCount)
}

func TestRequestRide_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.RequestRide(ctx, driver1, testRide)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	bad := testRide
	bad.Pickup = contracts.GeoPoint{Lat: 91, Lng: 0}
	_, err = h.engine.RequestRide(ctx, passenger, bad)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
}

func TestOffers_AcceptNotifiesAllBidders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r, err := h.engine.RequestRide(ctx, passenger, testRide)
	require.NoError(t, err)

	o1, err := h.engine.SubmitOffer(ctx, driver1, contracts.SubmitOfferPayload{RideID: r.ID, Price: 100})
	require.NoError(t, err)
	o2, err := h.engine.SubmitOffer(ctx, driver2, contracts.SubmitOfferPayload{RideID: r.ID, Price: 120})
	require.NoError(t, err)

	assert.Len(t, h.transport.to("d1", contracts.EventOfferSubmitted), 1)
	newOffers := h.transport.to("p1", contracts.EventNewOffer)
	require.Len(t, newOffers, 2)
	first := newOffers[0].(contracts.NewOfferPayload)
	assert.Equal(t, o1.ID, first.Offer.OfferID)
	assert.InDelta(t, 4.5, first.Driver.Rating, 0.001)

	res, err := h.engine.AcceptOffer(ctx, passenger, contracts.AcceptOfferPayload{OfferID: o1.ID})
	require.NoError(t, err)
	require.NotNil(t, res.Ride.Fare)
	assert.InDelta(t, 100, *res.Ride.Fare, 0.001)

	assert.Len(t, h.transport.to("d1", contracts.EventOfferAccepted), 1)
	assert.Len(t, h.transport.to("p1", contracts.EventRideAcceptedSuccess), 1)
	rejected := h.transport.to("d2", contracts.EventOfferRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, o2.ID, rejected[0].(contracts.OfferRejectedPayload).OfferID)

	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Assignments), 0.001)
	assert.Equal(t, []string{"RIDE_REQUESTED", "OFFER_ACCEPTED"}, h.publisher.names())
}

func TestOffers_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r, err := h.engine.RequestRide(ctx, passenger, testRide)
	require.NoError(t, err)

	_, err = h.engine.SubmitOffer(ctx, passenger, contracts.SubmitOfferPayload{RideID: r.ID, Price: 100})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = h.engine.SubmitOffer(ctx, driver1, contracts.SubmitOfferPayload{RideID: "missing", Price: 100})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = h.engine.SubmitOffer(ctx, driver1, contracts.SubmitOfferPayload{RideID: r.ID, Price: -1})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	o, err := h.engine.SubmitOffer(ctx, driver1, contracts.SubmitOfferPayload{RideID: r.ID, Price: 100})
	require.NoError(t, err)

	_, err = h.engine.AcceptOffer(ctx, driver1, contracts.AcceptOfferPayload{OfferID: o.ID})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = h.engine.AcceptOffer(ctx, passenger, contracts.AcceptOfferPayload{})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
}

func TestOffers_ConcurrentAcceptOneWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r, err := h.engine.RequestRide(ctx, passenger, testRide)
	require.NoError(t, err)
	o1, err := h.engine.SubmitOffer(ctx, driver1, contracts.SubmitOfferPayload{RideID: r.ID, Price: 100})
	require.NoError(t, err)
	o2, err := h.engine.SubmitOffer(ctx, driver2, contracts.SubmitOfferPayload{RideID: r.ID, Price: 120})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{o1.ID, o2.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = h.engine.AcceptOffer(ctx, passenger, contracts.AcceptOfferPayload{OfferID: id})
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err), "unexpected %v", err)
	}
	assert.Equal(t, 1, wins)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Assignments), 0.001)
}

func TestConfirmStart_NotifiesBothAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.acceptedRide(t)
	ref := contracts.RideRefPayload{RideID: r.ID}

	_, err := h.engine.ConfirmStart(ctx, passenger, ref)
	require.NoError(t, err)
	assert.Len(t, h.transport.to("d1", contracts.EventStartConfirmed), 1)
	assert.Empty(t, h.transport.to("d1", contracts.EventRideStarted))

	// the passenger taps again: nothing new is recorded or sent
	_, err = h.engine.ConfirmStart(ctx, passenger, ref)
	require.NoError(t, err)
	assert.Len(t, h.transport.to("d1", contracts.EventStartConfirmed), 1)
	assert.Len(t, h.transport.to("p1", contracts.EventStartConfirmed), 1)

	started, err := h.engine.ConfirmStart(ctx, driver1, ref)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusInProgress, started.Status)
	assert.Len(t, h.transport.to("p1", contracts.EventRideStarted), 1)
	assert.Len(t, h.transport.to("d1", contracts.EventRideStarted), 1)

	again, err := h.engine.ConfirmStart(ctx, driver1, ref)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusInProgress, again.Status)
	assert.Len(t, h.transport.to("p1", contracts.EventRideStarted), 1)
	assert.Len(t, h.transport.to("p1", contracts.EventStartConfirmed), 2)

	_, err = h.engine.ConfirmStart(ctx, driver2, ref)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestCancelAndComplete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.acceptedRide(t)
	_, err := h.engine.CancelRide(ctx, passenger, contracts.CancelRidePayload{RideID: r.ID, Reason: "late"})
	require.NoError(t, err)
	assert.Len(t, h.transport.to("p1", contracts.EventRideCancelledSuccess), 1)
	cancelled := h.transport.to("d1", contracts.EventRideCancelled)
	require.Len(t, cancelled, 1)
	payload := cancelled[0].(contracts.RideCancelledPayload)
	assert.Equal(t, "PASSENGER", payload.CancelledBy)
	assert.Equal(t, "late", payload.Reason)

	done := h.acceptedRide(t)
	ref := contracts.RideRefPayload{RideID: done.ID}
	_, err = h.engine.ConfirmStart(ctx, passenger, ref)
	require.NoError(t, err)
	_, err = h.engine.ConfirmStart(ctx, driver1, ref)
	require.NoError(t, err)

	_, err = h.engine.CompleteRide(ctx, passenger, ref)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = h.engine.CompleteRide(ctx, driver1, ref)
	require.NoError(t, err)
	assert.Len(t, h.transport.to("p1", contracts.EventRideCompleted), 1)

	_, err = h.engine.CancelRide(ctx, passenger, contracts.CancelRidePayload{RideID: done.ID})
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	history, err := h.engine.History(ctx, driver1, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestCancel_RequestedRideHasNoCounterpart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r, err := h.engine.RequestRide(ctx, passenger, testRide)
	require.NoError(t, err)
	_, err = h.engine.CancelRide(ctx, passenger, contracts.CancelRidePayload{RideID: r.ID})
	require.NoError(t, err)
	assert.Empty(t, h.transport.to("d1", contracts.EventRideCancelled))
}

func TestNearbyDrivers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.engine.NearbyDrivers(ctx, passenger, contracts.NearbyDriversQuery{VehicleTypeID: economy})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Len(t, res.Drivers, 2)

	res, err = h.engine.NearbyDrivers(ctx, passenger, contracts.NearbyDriversQuery{VehicleTypeID: economy, Location: &pickup})
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	require.Len(t, res.Drivers, 1)
	assert.Equal(t, "d1", res.Drivers[0].DriverID)

	require.NoError(t, h.engine.UpdateLocation(ctx, passenger, contracts.UpdateLocationPayload{Lat: 0.99, Lng: 0.99}))
	res, err = h.engine.NearbyDrivers(ctx, passenger, contracts.NearbyDriversQuery{VehicleTypeID: economy})
	require.NoError(t, err)
	require.Len(t, res.Drivers, 1)
	assert.Equal(t, "d2", res.Drivers[0].DriverID)

	_, err = h.engine.NearbyDrivers(ctx, driver1, contracts.NearbyDriversQuery{VehicleTypeID: economy})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

// laggingMirror holds position writes until released, like a slow Redis.
type laggingMirror struct {
	ports.PresenceMirror
	release chan struct{}
}

func (m *laggingMirror) UpdatePosition(ctx context.Context, userID string, point geo.Point) error {
	<-m.release
	return m.PresenceMirror.UpdatePosition(ctx, userID, point)
}

func TestRequestRide_DirectoryIsAuthoritativeOverRedisMirror(t *testing.T) {
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	// Redis still believes d2 sits next to the pickup
	require.NoError(t, redis.NewPresenceMirror(client).UpdatePosition(ctx, "d2", nearD1))

	mirror := &laggingMirror{PresenceMirror: redis.NewPresenceMirror(client), release: make(chan struct{})}
	released := false
	release := func() {
		if !released {
			released = true
			close(mirror.release)
		}
	}
	h := newMirroredHarness(t, mirror)
	t.Cleanup(release)

	// d1 reports a fresh position and a ride is requested before Redis catches up
	fresh := geo.Point{Latitude: 0.02, Longitude: 0.02}
	require.NoError(t, h.engine.UpdateLocation(ctx, driver1, contracts.UpdateLocationPayload{Lat: fresh.Latitude, Lng: fresh.Longitude}))
	_, err := h.engine.RequestRide(ctx, passenger, testRide)
	require.NoError(t, err)

	assert.Len(t, h.transport.to("d1", contracts.EventNewRideRequest), 1)
	assert.Empty(t, h.transport.to("d2", contracts.EventNewRideRequest))

	res, err := h.engine.NearbyDrivers(ctx, passenger, contracts.NearbyDriversQuery{VehicleTypeID: economy, Location: &pickup})
	require.NoError(t, err)
	require.Len(t, res.Drivers, 1)
	assert.Equal(t, "d1", res.Drivers[0].DriverID)
	require.NotNil(t, res.Drivers[0].DistanceKM)
	assert.InDelta(t, geo.DistanceKM(geo.Point{}, fresh), *res.Drivers[0].DistanceKM, 0.001)

	release()
}

func TestConnect_RefusesSuspendedAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.Users().Upsert(ctx, &user.User{ID: "p-susp", Role: user.RolePassenger, Status: user.StatusSuspended}))
	err := h.engine.Connect(ctx, Actor{ID: "p-susp", Role: user.RolePassenger, Handle: "h-x"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, ok := h.directory.Lookup("p-susp")
	assert.False(t, ok)
}

func TestDisconnect_IgnoresStaleHandle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.engine.Disconnect(ctx, "d1", "old-handle")
	rec, ok := h.directory.Lookup("d1")
	require.True(t, ok)
	assert.True(t, rec.Online)

	h.engine.Disconnect(ctx, "d1", "h-d1")
	rec, ok = h.directory.Lookup("d1")
	require.True(t, ok)
	assert.False(t, rec.Online)
}

func TestErrorPayload(t *testing.T) {
	p := ErrorPayload(contracts.EventAcceptOffer, apperr.Conflict("lost"))
	assert.Equal(t, "CONFLICT", p.Code)
	assert.Equal(t, "lost", p.Message)
	assert.Equal(t, contracts.EventAcceptOffer, p.Event)

	p = ErrorPayload(contracts.EventCancelRide, assert.AnError)
	assert.Equal(t, "INTERNAL", p.Code)
	assert.Equal(t, "internal error", p.Message)
}
