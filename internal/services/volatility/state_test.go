package volatility

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

// fixedParams serves a constant lambda for every asset.
type fixedParams struct {
	lambda float64
}

func (p fixedParams) ParamsFor(asset string) models.ScalingParameters {
	return models.ScalingParameters{Asset: asset, Family: models.FamilyStudentT, DF: 5}
}

func (p fixedParams) Lambda(asset string) float64 { return p.lambda }

func TestApplyReturnEWMA(t *testing.T) {
	store := NewStore(fixedParams{lambda: 0.94})
	now := time.Now().UTC()
	store.Initialize("BTC", 1e-6, 50000, now)

	st, err := store.ApplyReturn("BTC", 0.001, now.Add(time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, 0.94*1e-6+0.06*1e-6, st.Sigma2OneMin, 1e-18)
	assert.Equal(t, int64(1), st.SampleCount)
}

func TestZeroReturnDecaysGeometrically(t *testing.T) {
	store := NewStore(fixedParams{lambda: 0.94})
	now := time.Now().UTC()
	store.Initialize("BTC", 1e-6, 50000, now)

	sigma2 := 1e-6
	for i := 0; i < 20; i++ {
		st, err := store.ApplyReturn("BTC", 0, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		sigma2 *= 0.94
		assert.InDelta(t, sigma2, st.Sigma2OneMin, 1e-20)
		assert.GreaterOrEqual(t, st.Sigma2OneMin, 0.0)
	}
}

func TestApplyReturnRejectsNonFinite(t *testing.T) {
	store := NewStore(fixedParams{lambda: 0.94})
	now := time.Now().UTC()
	store.Initialize("BTC", 1e-6, 50000, now)

	for _, r := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := store.ApplyReturn("BTC", r, now)
		require.ErrorIs(t, err, ErrInvalidObservation)
	}

	st, ok := store.Snapshot("BTC")
	require.True(t, ok)
	assert.Equal(t, 1e-6, st.Sigma2OneMin, "rejected input must not touch state")
	assert.Zero(t, st.SampleCount)
}

func TestApplyReturnMissingState(t *testing.T) {
	store := NewStore(fixedParams{lambda: 0.94})
	_, err := store.ApplyReturn("BTC", 0.001, time.Now().UTC())
	assert.ErrorIs(t, err, ErrStateMissing)
}

func TestApplyCloseDerivesLogReturn(t *testing.T) {
	store := NewStore(fixedParams{lambda: 0.9})
	now := time.Now().UTC()
	store.Initialize("ETH", 1e-6, 3000, now)

	st, err := store.ApplyClose("ETH", 3003, now.Add(time.Minute))
	require.NoError(t, err)
	r := math.Log(3003.0 / 3000.0)
	assert.InDelta(t, 0.9*1e-6+0.1*r*r, st.Sigma2OneMin, 1e-15)
	assert.Equal(t, 3003.0, st.LastClose)

	_, err = store.ApplyClose("ETH", -5, now)
	assert.ErrorIs(t, err, ErrInvalidObservation)
	_, err = store.ApplyClose("ETH", math.NaN(), now)
	assert.ErrorIs(t, err, ErrInvalidObservation)
}

func TestInitializeFirstWriterWins(t *testing.T) {
	store := NewStore(fixedParams{lambda: 0.94})
	now := time.Now().UTC()

	var wg sync.WaitGroup
	results := make([]models.VolatilityState, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.Initialize("BTC", float64(i+1)*1e-6, 50000, now)
		}(i)
	}
	wg.Wait()

	winner, ok := store.Snapshot("BTC")
	require.True(t, ok)
	for i, st := range results {
		assert.Equal(t, winner.Sigma2OneMin, st.Sigma2OneMin, "caller %d observed a divergent state", i)
	}
}

func TestRestoreSkipsInvalidAndKeepsExisting(t *testing.T) {
	store := NewStore(fixedParams{lambda: 0.94})
	now := time.Now().UTC()
	store.Initialize("BTC", 1e-6, 50000, now)

	loaded := store.Restore(map[string]models.VolatilityState{
		"BTC": {Sigma2OneMin: 9e-6, Lambda: 0.9},            // already present, must not overwrite
		"ETH": {Sigma2OneMin: 2e-6, Lambda: 0.93},           // valid
		"SOL": {Sigma2OneMin: math.NaN(), Lambda: 0.9},      // corrupt variance
		"XAU": {Sigma2OneMin: 1e-6, Lambda: 1.5},            // corrupt lambda
		"BAD": {Sigma2OneMin: -1, Lambda: 0.9},              // negative variance
	})
	assert.Equal(t, 1, loaded)

	btc, _ := store.Snapshot("BTC")
	assert.Equal(t, 1e-6, btc.Sigma2OneMin)

	eth, ok := store.Snapshot("ETH")
	require.True(t, ok)
	assert.Equal(t, 2e-6, eth.Sigma2OneMin)

	_, ok = store.Snapshot("SOL")
	assert.False(t, ok)
}

func TestConcurrentUpdatesStayFinite(t *testing.T) {
	store := NewStore(fixedParams{lambda: 0.94})
	now := time.Now().UTC()
	store.Initialize("BTC", 1e-6, 50000, now)
	store.Initialize("ETH", 2e-6, 3000, now)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, _ = store.ApplyReturn("BTC", 0.0005, now)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if st, ok := store.Snapshot("ETH"); ok {
					assert.False(t, math.IsNaN(st.Sigma2OneMin))
				}
			}
		}()
	}
	wg.Wait()

	st, _ := store.Snapshot("BTC")
	assert.Equal(t, int64(800), st.SampleCount)
	assert.Greater(t, st.Sigma2OneMin, 0.0)
}
