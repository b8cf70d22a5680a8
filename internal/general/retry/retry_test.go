package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"ride-dispatch/internal/general/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(retries int) Config {
	cfg := ReadConfig(retries)
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestDo_RetriesUnavailableThenSucceeds(t *testing.T) {
	r := New(fastConfig(2), nil)
	calls := 0
	err := r.Do(context.Background(), "get_ride", func(context.Context) error {
		calls++
		if calls < 3 {
			return apperr.Wrap(apperr.KindUnavailable, errors.New("timeout"), "store unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_DoesNotRetryClosedDecisions(t *testing.T) {
	r := New(fastConfig(5), nil)
	calls := 0
	err := r.Do(context.Background(), "get_ride", func(context.Context) error {
		calls++
		return apperr.NotFound("ride not found")
	})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, 1, calls)
}

func TestDo_GivesUpAndKeepsKind(t *testing.T) {
	r := New(fastConfig(2), nil)
	calls := 0
	err := r.Do(context.Background(), "get_ride", func(context.Context) error {
		calls++
		return apperr.Wrap(apperr.KindUnavailable, errors.New("refused"), "store unavailable")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
	assert.Contains(t, err.Error(), "gave up after 3 attempts")
}

func TestDo_ZeroRetriesRunsOnce(t *testing.T) {
	r := New(fastConfig(0), nil)
	calls := 0
	err := r.Do(context.Background(), "get_ride", func(context.Context) error {
		calls++
		return apperr.Wrap(apperr.KindUnavailable, errors.New("refused"), "store unavailable")
	})
	assert.Equal(t, 1, calls)
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
	assert.NotContains(t, err.Error(), "gave up")
}

func TestDo_CancelWhileWaitingKeepsLastError(t *testing.T) {
	cfg := ReadConfig(3)
	cfg.BaseDelay = time.Minute
	r := New(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	err := r.Do(ctx, "get_ride", func(context.Context) error {
		calls++
		cancel()
		return apperr.Wrap(apperr.KindUnavailable, errors.New("timeout"), "store unavailable")
	})
	assert.Equal(t, 1, calls)
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
}

func TestValue(t *testing.T) {
	r := New(fastConfig(1), nil)
	v, err := Value(context.Background(), r, "count", func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(fastConfig(3), nil)
	err := r.Do(ctx, "get_ride", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
