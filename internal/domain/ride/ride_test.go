package ride

import (
	"testing"
	"time"

	"ride-dispatch/internal/domain/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequested(t *testing.T) *Ride {
	t.Helper()
	r, err := NewRide("r1", "p1", "economy", geo.Point{Latitude: 0, Longitude: 0}, geo.Point{Latitude: 0.1, Longitude: 0.1}, nil)
	require.NoError(t, err)
	return r
}

func TestStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusRequested, StatusAccepted, true},
		{StatusRequested, StatusCancelled, true},
		{StatusRequested, StatusInProgress, false},
		{StatusAccepted, StatusInProgress, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusRequested, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusInProgress.Terminal())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" in_progress ")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s)

	_, err = ParseStatus("MATCHED")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestNewRide_Validation(t *testing.T) {
	p := geo.Point{Latitude: 1, Longitude: 1}
	_, err := NewRide("r", "", "v", p, geo.Point{}, nil)
	assert.ErrorIs(t, err, ErrPassengerRequired)

	_, err = NewRide("r", "p", " ", p, geo.Point{}, nil)
	assert.ErrorIs(t, err, ErrVehicleTypeRequired)

	_, err = NewRide("r", "p", "v", p, p, nil)
	assert.ErrorIs(t, err, ErrSamePickupAndDropoff)

	neg := -1.0
	_, err = NewRide("r", "p", "v", p, geo.Point{}, &neg)
	assert.ErrorIs(t, err, ErrNegativeDistance)

	r := newRequested(t)
	assert.Equal(t, StatusRequested, r.Status)
	assert.Nil(t, r.DriverID)
	assert.Nil(t, r.Fare)
	assert.False(t, r.PassengerConfirmed)
	assert.False(t, r.DriverConfirmed)
}

func TestAssignTransition_AppliesSnapshot(t *testing.T) {
	r := newRequested(t)
	filter, patch, err := AssignTransition(r.ID, "d1", 100, VehicleSnapshot{Model: "Corolla", Color: "white", Registration: "123ABC"})
	require.NoError(t, err)
	require.NoError(t, patch.Validate())
	require.True(t, filter.Matches(r))

	patch.Apply(r, time.Now().UTC())
	assert.Equal(t, StatusAccepted, r.Status)
	assert.Equal(t, "d1", r.DriverIDValue())
	require.NotNil(t, r.Fare)
	assert.Equal(t, 100.0, *r.Fare)
	assert.Equal(t, "Corolla", r.Vehicle.Model)

	// second assignment no longer matches
	assert.False(t, filter.Matches(r))

	_, _, err = AssignTransition(r.ID, "d1", 0, VehicleSnapshot{})
	assert.ErrorIs(t, err, ErrFareMustBePositive)
	_, _, err = AssignTransition(r.ID, "", 10, VehicleSnapshot{})
	assert.ErrorIs(t, err, ErrDriverRequired)
}

func TestStartTransition_RequiresBothFlags(t *testing.T) {
	r := newRequested(t)
	_, assign, err := AssignTransition(r.ID, "d1", 50, VehicleSnapshot{})
	require.NoError(t, err)
	assign.Apply(r, time.Now())

	startFilter, startPatch := StartTransition(r.ID, time.Now())
	assert.False(t, startFilter.Matches(r))

	_, passenger := ConfirmTransition(r.ID, PartyPassenger)
	passenger.Apply(r, time.Now())
	assert.False(t, startFilter.Matches(r))

	_, driver := ConfirmTransition(r.ID, PartyDriver)
	driver.Apply(r, time.Now())
	require.True(t, startFilter.Matches(r))

	startPatch.Apply(r, time.Now())
	assert.Equal(t, StatusInProgress, r.Status)
	assert.NotNil(t, r.StartedAt)
}

func TestConfirmTransition_OncePerParty(t *testing.T) {
	r := newRequested(t)
	_, assign, err := AssignTransition(r.ID, "d1", 50, VehicleSnapshot{})
	require.NoError(t, err)
	assign.Apply(r, time.Now())

	filter, patch := ConfirmTransition(r.ID, PartyPassenger)
	require.True(t, filter.Matches(r))
	patch.Apply(r, time.Now())
	assert.True(t, r.HasConfirmed(PartyPassenger))
	assert.False(t, r.HasConfirmed(PartyDriver))

	assert.False(t, filter.Matches(r), "a second passenger confirmation must not match")
	driverFilter, _ := ConfirmTransition(r.ID, PartyDriver)
	assert.True(t, driverFilter.Matches(r))
}

func TestCancelTransition_OnlyFromCancellable(t *testing.T) {
	r := newRequested(t)
	filter, _ := CancelTransition(r.ID, PartyPassenger, " changed my mind ", time.Now())
	assert.True(t, filter.Matches(r))

	r.Status = StatusCompleted
	assert.False(t, filter.Matches(r))
}

func TestRide_PartyOfAndCounterpart(t *testing.T) {
	r := newRequested(t)
	party, err := r.PartyOf("p1")
	require.NoError(t, err)
	assert.Equal(t, PartyPassenger, party)

	_, ok := r.Counterpart("p1")
	assert.False(t, ok)

	_, err = r.PartyOf("d1")
	assert.ErrorIs(t, err, ErrNotParticipant)

	driverID := "d1"
	r.DriverID = &driverID
	party, err = r.PartyOf("d1")
	require.NoError(t, err)
	assert.Equal(t, PartyDriver, party)

	other, ok := r.Counterpart("p1")
	assert.True(t, ok)
	assert.Equal(t, "d1", other)
}

func TestRide_CloneDoesNotAlias(t *testing.T) {
	r := newRequested(t)
	fare := 10.0
	r.Fare = &fare

	c := r.Clone()
	*c.Fare = 99
	assert.Equal(t, 10.0, *r.Fare)
}

func TestNewOffer(t *testing.T) {
	o, err := NewOffer("o1", "r1", "d1", 120)
	require.NoError(t, err)
	assert.Equal(t, OfferPending, o.Status)

	_, err = NewOffer("o1", "r1", "d1", 0)
	assert.ErrorIs(t, err, ErrPriceMustBePositive)
	_, err = NewOffer("o1", "", "d1", 1)
	assert.ErrorIs(t, err, ErrRideIDRequired)
}
