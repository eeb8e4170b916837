package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

func sampleRecord(asset string, horizon models.HorizonLabel, at time.Time) *models.PredictionRecord {
	return &models.PredictionRecord{
		Asset:      asset,
		T0:         at,
		Increment:  60,
		StepCount:  3,
		Horizon:    horizon,
		StartPrice: 50000,
		LoggedAt:   at,
		Paths:      [][]float64{{50000, 50000, 50000}},
	}
}

func TestPredictionLogSampling(t *testing.T) {
	log := NewFilePredictionLog(t.TempDir())
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	logged, err := log.Log(sampleRecord("BTC", models.HorizonLow, base))
	require.NoError(t, err)
	assert.True(t, logged)

	// Inside the 30 minute LOW window: dropped.
	logged, err = log.Log(sampleRecord("BTC", models.HorizonLow, base.Add(10*time.Minute)))
	require.NoError(t, err)
	assert.False(t, logged)

	// Past the window: accepted.
	logged, err = log.Log(sampleRecord("BTC", models.HorizonLow, base.Add(31*time.Minute)))
	require.NoError(t, err)
	assert.True(t, logged)

	// HIGH horizon samples on its own 15 minute clock.
	logged, err = log.Log(sampleRecord("BTC", models.HorizonHigh, base.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, logged)

	// Different asset is independent.
	logged, err = log.Log(sampleRecord("ETH", models.HorizonLow, base.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, logged)
}

func TestPredictionLogForceReasonBypassesSampling(t *testing.T) {
	log := NewFilePredictionLog(t.TempDir())
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	_, err := log.Log(sampleRecord("BTC", models.HorizonLow, base))
	require.NoError(t, err)

	spike := sampleRecord("BTC", models.HorizonLow, base.Add(time.Minute))
	spike.LogReason = "volatility_spike"
	logged, err := log.Log(spike)
	require.NoError(t, err)
	assert.True(t, logged)
}

func TestPredictionLogRecordsFilter(t *testing.T) {
	log := NewFilePredictionLog(t.TempDir())
	jan := time.Date(2026, 1, 30, 12, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)

	_, err := log.Log(sampleRecord("BTC", models.HorizonLow, jan))
	require.NoError(t, err)
	_, err = log.Log(sampleRecord("ETH", models.HorizonLow, feb))
	require.NoError(t, err)
	_, err = log.Log(sampleRecord("BTC", models.HorizonLow, feb.Add(time.Hour)))
	require.NoError(t, err)

	// Cross-month range, all assets.
	records, err := log.Records(jan.Add(-time.Hour), feb.Add(2*time.Hour), "")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.True(t, records[0].T0.Before(records[1].T0))

	// Asset filter.
	records, err = log.Records(jan.Add(-time.Hour), feb.Add(2*time.Hour), "BTC")
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Narrow window.
	records, err = log.Records(feb.Add(-time.Hour), feb.Add(30*time.Minute), "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ETH", records[0].Asset)
}
