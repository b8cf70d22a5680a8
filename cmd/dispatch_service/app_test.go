package dispatchservice

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ride-dispatch/internal/general/config"
	"ride-dispatch/internal/general/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithConcurrencyLimit_BlocksBeyondCapacity(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 4)
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	h := withConcurrencyLimit(1, slow)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}()
	<-entered

	// the second request waits for a slot and gives up when its context ends
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	close(release)
	wg.Wait()
}

func TestWithConcurrencyLimit_ZeroIsUnlimited(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	withConcurrencyLimit(0, next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestOpenStores_Memory(t *testing.T) {
	cfg := &config.Config{}
	cfg.Dispatch.Store = config.StoreMemory
	log := logger.NewWithOutput("app-test", "error", io.Discard)

	st, err := openStores(context.Background(), cfg, log)
	require.NoError(t, err)
	defer st.close()

	assert.NotNil(t, st.uow)
	assert.NotNil(t, st.rides)
	assert.NotNil(t, st.offers)
	assert.NotNil(t, st.users)
	assert.NotNil(t, st.stats)
	assert.Empty(t, st.checks)
}
