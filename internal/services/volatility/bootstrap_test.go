package volatility

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
	"github.com/duke524-dev/synth-subnet/pkg/logger"
)

type stubSpot struct {
	price float64
	err   error
	calls atomic.Int64
}

func (s *stubSpot) Spot(ctx context.Context, asset string) (domrepo.PricePoint, error) {
	s.calls.Add(1)
	if s.err != nil {
		return domrepo.PricePoint{}, s.err
	}
	return domrepo.PricePoint{TS: time.Now().UTC(), Price: s.price}, nil
}

type stubHistory struct {
	closes []domrepo.PricePoint
	err    error
}

func (s *stubHistory) Closes(ctx context.Context, asset string, from, to time.Time) ([]domrepo.PricePoint, error) {
	return s.closes, s.err
}

func bootstrapLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func TestEnsureSeedsFromHistory(t *testing.T) {
	base := time.Now().UTC()
	hist := &stubHistory{closes: []domrepo.PricePoint{
		{TS: base.Add(-3 * time.Minute), Price: 50000},
		{TS: base.Add(-2 * time.Minute), Price: 50050},
		{TS: base.Add(-time.Minute), Price: 49980},
	}}
	store := NewStore(fixedParams{lambda: 0.94})
	boot := NewBootstrap(store, &stubSpot{price: 50000}, hist, DefaultBootstrapConfig(), bootstrapLogger(t))

	st, err := boot.Ensure(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "BTC", st.Asset)
	assert.Greater(t, st.Sigma2OneMin, 0.0)
	assert.NotEqual(t, 5e-6, st.Sigma2OneMin, "history must beat the fallback constant")
}

func TestEnsureFallbackWhenHistoryUnavailable(t *testing.T) {
	store := NewStore(fixedParams{lambda: 0.94})
	hist := &stubHistory{err: errors.New("upstream down")}
	boot := NewBootstrap(store, &stubSpot{price: 50000}, hist, DefaultBootstrapConfig(), bootstrapLogger(t))

	st, err := boot.Ensure(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 5e-6, st.Sigma2OneMin)

	// Unknown asset falls through to the class default.
	st, err = boot.Ensure(context.Background(), "DOGE")
	require.NoError(t, err)
	assert.Equal(t, 1e-6, st.Sigma2OneMin)
}

func TestEnsureCollapsesConcurrentCalls(t *testing.T) {
	store := NewStore(fixedParams{lambda: 0.94})
	spot := &stubSpot{price: 50000}
	boot := NewBootstrap(store, spot, &stubHistory{err: errors.New("no history")}, DefaultBootstrapConfig(), bootstrapLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := boot.Ensure(context.Background(), "BTC")
			assert.NoError(t, err)
			assert.Equal(t, 5e-6, st.Sigma2OneMin)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), spot.calls.Load(), "spot fetch must run once per asset")
}

func TestEnsureRetriesAfterFailure(t *testing.T) {
	store := NewStore(fixedParams{lambda: 0.94})
	spot := &stubSpot{err: errors.New("feed down")}
	boot := NewBootstrap(store, spot, nil, DefaultBootstrapConfig(), bootstrapLogger(t))

	_, err := boot.Ensure(context.Background(), "BTC")
	require.Error(t, err)

	spot.err = nil
	spot.price = 50000
	st, err := boot.Ensure(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, st.LastClose)
}

func TestEnsureRejectsBadSpot(t *testing.T) {
	store := NewStore(fixedParams{lambda: 0.94})
	boot := NewBootstrap(store, &stubSpot{price: -1}, nil, DefaultBootstrapConfig(), bootstrapLogger(t))

	_, err := boot.Ensure(context.Background(), "BTC")
	assert.ErrorIs(t, err, ErrInvalidObservation)
}
