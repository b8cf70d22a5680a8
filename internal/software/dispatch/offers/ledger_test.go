package offers

import (
	"context"
	"io"
	"sync"
	"testing"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/memstore"
	"ride-dispatch/internal/software/dispatch/rides"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *memstore.Store
	machine *rides.Machine
	ledger  *Ledger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memstore.New()
	log := logger.NewWithOutput("offers-test", "error", io.Discard)
	machine := rides.New(log, store, store.Rides(), store.Offers(), rides.Config{})
	ledger := New(log, store, store.Rides(), store.Offers(), store.Users(), machine, 0)

	require.NoError(t, store.Users().Upsert(context.Background(), &user.User{
		ID:            "d1",
		Name:          "Dana",
		Role:          user.RoleDriver,
		Status:        user.StatusActive,
		VehicleTypeID: "economy",
		Vehicle:       user.Vehicle{Brand: "Toyota", Model: "Prius", Color: "white", Registration: "AB123"},
		Rating:        4.8,
	}))
	return fixture{store: store, machine: machine, ledger: ledger}
}

func (f fixture) request(t *testing.T) ride.Ride {
	t.Helper()
	r, err := f.machine.Request(context.Background(), rides.RequestInput{
		PassengerID:   "p1",
		VehicleTypeID: "economy",
		Pickup:        geo.Point{Latitude: 0, Longitude: 0},
		Dropoff:       geo.Point{Latitude: 0.05, Longitude: 0.05},
	})
	require.NoError(t, err)
	return r
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.request(t)

	o, err := f.ledger.Submit(ctx, r.ID, "d1", 100)
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, ride.OfferPending, o.Status)

	_, err = f.ledger.Submit(ctx, r.ID, "d1", 0)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	_, err = f.ledger.Submit(ctx, "missing", "d1", 100)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	list, err := f.ledger.ListForRide(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSubmit_RideNoLongerRequested(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.request(t)

	_, err := f.machine.Cancel(ctx, r.ID, "p1", "")
	require.NoError(t, err)

	_, err = f.ledger.Submit(ctx, r.ID, "d1", 100)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestAccept_AssignsAndRejectsSiblings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.request(t)

	winner, err := f.ledger.Submit(ctx, r.ID, "d1", 100)
	require.NoError(t, err)
	loser, err := f.ledger.Submit(ctx, r.ID, "d2", 120)
	require.NoError(t, err)

	res, err := f.ledger.Accept(ctx, winner.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, ride.StatusAccepted, res.Ride.Status)
	assert.Equal(t, "d1", res.Ride.DriverIDValue())
	require.NotNil(t, res.Ride.Fare)
	assert.InDelta(t, 100, *res.Ride.Fare, 0.001)
	require.NotNil(t, res.Ride.Vehicle)
	assert.Equal(t, "Toyota Prius", res.Ride.Vehicle.Model)
	assert.Equal(t, ride.OfferAccepted, res.Offer.Status)
	require.NotNil(t, res.Driver)
	assert.Equal(t, "Dana", res.Driver.Name)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, loser.ID, res.Rejected[0].ID)

	list, err := f.ledger.ListForRide(ctx, r.ID)
	require.NoError(t, err)
	statuses := map[string]ride.OfferStatus{}
	for _, o := range list {
		statuses[o.ID] = o.Status
	}
	assert.Equal(t, ride.OfferAccepted, statuses[winner.ID])
	assert.Equal(t, ride.OfferRejected, statuses[loser.ID])
}

func TestAccept_DriverWithoutProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.request(t)

	o, err := f.ledger.Submit(ctx, r.ID, "d2", 90)
	require.NoError(t, err)

	res, err := f.ledger.Accept(ctx, o.ID, "p1")
	require.NoError(t, err)
	assert.Nil(t, res.Driver)
	assert.Equal(t, "d2", res.Ride.DriverIDValue())
}

func TestAccept_ErrorOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.request(t)

	o, err := f.ledger.Submit(ctx, r.ID, "d1", 100)
	require.NoError(t, err)

	_, err = f.ledger.Accept(ctx, "missing", "p1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.ledger.Accept(ctx, o.ID, "p2")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = f.ledger.Accept(ctx, o.ID, "p1")
	require.NoError(t, err)

	// the ride is taken now
	_, err = f.ledger.Accept(ctx, o.ID, "p1")
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
}

func TestAccept_CancelledRideIsInvalidState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.request(t)

	o, err := f.ledger.Submit(ctx, r.ID, "d1", 100)
	require.NoError(t, err)
	_, err = f.machine.Cancel(ctx, r.ID, "p1", "changed plans")
	require.NoError(t, err)

	_, err = f.ledger.Accept(ctx, o.ID, "p1")
	assert.True(t, apperr.Is(err, apperr.KindInvalidState), "got %v", err)
}

func TestAccept_ConcurrentOffersOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.request(t)

	first, err := f.ledger.Submit(ctx, r.ID, "d1", 100)
	require.NoError(t, err)
	second, err := f.ledger.Submit(ctx, r.ID, "d2", 120)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.ledger.Accept(ctx, id, "p1")
		}(i, id)
	}
	wg.Wait()

	var ok, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.Is(err, apperr.KindConflict):
			lost++
		default:
			t.Errorf("loser got %v, want Conflict", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, lost)

	list, err := f.ledger.ListForRide(ctx, r.ID)
	require.NoError(t, err)
	accepted := 0
	for _, o := range list {
		if o.Status == ride.OfferAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}
