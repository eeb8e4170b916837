package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
	"github.com/duke524-dev/synth-subnet/internal/services/markethours"
	"github.com/duke524-dev/synth-subnet/internal/services/volatility"
	"github.com/duke524-dev/synth-subnet/pkg/logger"
)

type testParams struct {
	equity bool
}

func (p testParams) ParamsFor(asset string) models.ScalingParameters {
	return models.ScalingParameters{
		Asset:               asset,
		SigmaCapDaily:       0.10,
		ShrinkHigh:          0.9,
		Family:              models.FamilyStudentT,
		DF:                  5,
		MarketHoursRequired: p.equity,
	}
}

func (p testParams) Lambda(asset string) float64 { return 0.94 }

type capturingLog struct {
	records []*models.PredictionRecord
}

func (l *capturingLog) Log(rec *models.PredictionRecord) (bool, error) {
	l.records = append(l.records, rec)
	return true, nil
}

func (l *capturingLog) Records(from, to time.Time, asset string) ([]*models.PredictionRecord, error) {
	return l.records, nil
}

type nopMetrics struct{}

func (nopMetrics) RecordForecast(asset, horizon string)     {}
func (nopMetrics) RecordError(kind string)                  {}
func (nopMetrics) RecordSigmaStep(asset string, v float64)  {}
func (nopMetrics) RecordLatency(op string, seconds float64) {}
func (nopMetrics) RecordTick(asset string, price float64)   {}

type fixedSpot struct {
	price float64
}

func (s fixedSpot) Spot(ctx context.Context, asset string) (domrepo.PricePoint, error) {
	return domrepo.PricePoint{TS: time.Now().UTC(), Price: s.price}, nil
}

func usecaseLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func newTestForecaster(t *testing.T, params testParams, spotPrice float64) (*Forecaster, *volatility.Store, *capturingLog) {
	t.Helper()
	store := volatility.NewStore(params)
	spot := fixedSpot{price: spotPrice}
	boot := volatility.NewBootstrap(store, spot, nil, volatility.DefaultBootstrapConfig(), usecaseLogger(t))
	gate := markethours.NewGate(params)
	predLog := &capturingLog{}
	seed := func() int64 { return 42 }
	f := NewForecaster(boot, params, gate, spot, predLog, nil, nopMetrics{}, usecaseLogger(t), seed)
	// Pin the clock before every fixed grid origin used below.
	f.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return f, store, predLog
}

func TestForecastEndToEndBTC(t *testing.T) {
	f, store, predLog := newTestForecaster(t, testParams{}, 50000)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store.Initialize("BTC", 1e-6, 50000, now)

	ens, err := f.Forecast(context.Background(), ForecastRequest{
		Asset:         "BTC",
		T0:            now,
		TimeIncrement: 60,
		TimeLength:    540, // 10 grid points
	})
	require.NoError(t, err)

	require.Len(t, ens.Paths, models.EnsembleSize)
	for i, p := range ens.Paths {
		require.Len(t, p, 10, "path %d", i)
	}
	for _, v := range ens.Paths[0] {
		assert.Equal(t, ens.StartPrice, v)
	}

	// Stochastic paths disperse at the endpoint.
	seen := map[float64]bool{}
	for i := 1; i < models.EnsembleSize; i++ {
		seen[ens.Paths[i][9]] = true
	}
	assert.Greater(t, len(seen), 100, "endpoint dispersion expected")

	require.Len(t, predLog.records, 1)
	rec := predLog.records[0]
	assert.Equal(t, "BTC", rec.Asset)
	assert.Equal(t, models.HorizonHigh, rec.Horizon)
	assert.Equal(t, ModelVersion, rec.ModelVersion)
	assert.Len(t, rec.ParameterHash, 16)
}

func TestForecastEquityOutsideHoursFlattens(t *testing.T) {
	f, store, _ := newTestForecaster(t, testParams{equity: true}, 500)
	sunday := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	store.Initialize("SPYX", 1e-6, 500, sunday)

	ens, err := f.Forecast(context.Background(), ForecastRequest{
		Asset:         "SPYX",
		T0:            sunday,
		TimeIncrement: 300,
		TimeLength:    3000,
	})
	require.NoError(t, err)
	assert.True(t, ens.Flattened)
	for i, p := range ens.Paths {
		assert.Equal(t, ens.Paths[0], p, "path %d", i)
	}
}

func TestForecastBootstrapsUnknownAsset(t *testing.T) {
	f, _, _ := newTestForecaster(t, testParams{}, 200)

	ens, err := f.Forecast(context.Background(), ForecastRequest{
		Asset:         "SOL",
		T0:            time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		TimeIncrement: 300,
		TimeLength:    86400,
	})
	require.NoError(t, err)
	assert.Equal(t, 289, ens.StepCount)
	assert.Equal(t, 200.0, ens.StartPrice)
}

func TestForecastRejectsBadGrid(t *testing.T) {
	f, _, _ := newTestForecaster(t, testParams{}, 50000)

	_, err := f.Forecast(context.Background(), ForecastRequest{Asset: "BTC", TimeIncrement: 0, TimeLength: 3600})
	assert.Error(t, err)

	_, err = f.Forecast(context.Background(), ForecastRequest{Asset: "BTC", TimeIncrement: 7, TimeLength: 100})
	assert.Error(t, err)
}

func TestForecastRejectsLateRequest(t *testing.T) {
	f, store, predLog := newTestForecaster(t, testParams{}, 50000)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store.Initialize("BTC", 1e-6, 50000, now)
	f.now = func() time.Time { return now }

	req := ForecastRequest{Asset: "BTC", T0: now, TimeIncrement: 60, TimeLength: 540}
	_, err := f.Forecast(context.Background(), req)
	require.ErrorIs(t, err, ErrRequestTooLate)

	req.T0 = now.Add(-time.Minute)
	_, err = f.Forecast(context.Background(), req)
	require.ErrorIs(t, err, ErrRequestTooLate)

	assert.Empty(t, predLog.records)
}

func TestForecastRejectsWhenGenerationOverruns(t *testing.T) {
	f, store, predLog := newTestForecaster(t, testParams{}, 50000)
	t0 := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store.Initialize("BTC", 1e-6, 50000, t0)

	// First read of the clock clears the entry guard; the second lands past
	// the grid origin, as if sampling took too long.
	calls := 0
	f.now = func() time.Time {
		calls++
		if calls == 1 {
			return t0.Add(-time.Second)
		}
		return t0.Add(time.Second)
	}

	_, err := f.Forecast(context.Background(), ForecastRequest{
		Asset:         "BTC",
		T0:            t0,
		TimeIncrement: 60,
		TimeLength:    540,
	})
	require.ErrorIs(t, err, ErrRequestTooLate)
	assert.Empty(t, predLog.records)
}

func TestForecastAnchorsOnFreshSpot(t *testing.T) {
	f, store, _ := newTestForecaster(t, testParams{}, 50500)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	// The EWMA state last saw 50000; the per-request spot fetch is fresher.
	store.Initialize("BTC", 1e-6, 50000, now)

	ens, err := f.Forecast(context.Background(), ForecastRequest{
		Asset:         "BTC",
		T0:            now,
		TimeIncrement: 60,
		TimeLength:    540,
	})
	require.NoError(t, err)
	assert.Equal(t, 50500.0, ens.StartPrice)
	for _, v := range ens.Paths[0] {
		assert.Equal(t, 50500.0, v)
	}
}

func TestForecastFallsBackToLastCloseWithoutSpot(t *testing.T) {
	f, store, _ := newTestForecaster(t, testParams{}, 50500)
	f.spot = nil
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store.Initialize("BTC", 1e-6, 50000, now)

	ens, err := f.Forecast(context.Background(), ForecastRequest{
		Asset:         "BTC",
		T0:            now,
		TimeIncrement: 60,
		TimeLength:    540,
	})
	require.NoError(t, err)
	assert.Equal(t, 50000.0, ens.StartPrice)
}

func TestForecastDeterministicForSeed(t *testing.T) {
	f, store, _ := newTestForecaster(t, testParams{}, 50000)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store.Initialize("BTC", 1e-6, 50000, now)

	req := ForecastRequest{Asset: "BTC", T0: now, TimeIncrement: 60, TimeLength: 540}
	a, err := f.Forecast(context.Background(), req)
	require.NoError(t, err)
	b, err := f.Forecast(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a.Paths, b.Paths)
}
