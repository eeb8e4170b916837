package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

func scored(asset string, gridTime time.Time, bucket models.HorizonBucket, score float64) models.CRPSResult {
	return models.CRPSResult{
		Asset:    asset,
		GridTime: gridTime,
		Bucket:   bucket,
		Score:    score,
		Realized: 100,
		Q05:      95,
		Q50:      101,
		Q95:      110,
	}
}

func TestAggregateEmpty(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	report := Aggregate(nil, 24*time.Hour, now)
	require.NotNil(t, report)
	assert.Nil(t, report.Overall)
	assert.Empty(t, report.Buckets)
	assert.Empty(t, report.Coverage)
	assert.Empty(t, report.Trends)
}

func TestAggregateSkipsMissingAndStale(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	results := []models.CRPSResult{
		scored("BTC", now.Add(-time.Hour), models.BucketShort, 10),
		scored("BTC", now.Add(-48*time.Hour), models.BucketShort, 99999), // outside window
		{Asset: "BTC", GridTime: now.Add(-time.Hour), Bucket: models.BucketShort, Missing: true},
	}

	report := Aggregate(results, 24*time.Hour, now)
	require.NotNil(t, report.Overall)
	assert.Equal(t, 1, report.Overall.Count)
	assert.Equal(t, 10.0, report.Overall.Mean)
}

func TestAggregateBucketsAbsentNotZero(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	results := []models.CRPSResult{
		scored("BTC", now.Add(-time.Hour), models.BucketShort, 4),
		scored("BTC", now.Add(-time.Hour), models.BucketShort, 6),
	}

	report := Aggregate(results, 24*time.Hour, now)
	require.Contains(t, report.Buckets, models.BucketShort)
	assert.NotContains(t, report.Buckets, models.BucketMedium)
	assert.NotContains(t, report.Buckets, models.BucketLong)

	short := report.Buckets[models.BucketShort]
	assert.Equal(t, 5.0, short.Mean)
	assert.Equal(t, 5.0, short.Median)
	assert.Equal(t, 2, short.Count)
}

func TestAggregateCoverage(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	gt := now.Add(-time.Hour)
	results := []models.CRPSResult{
		// realized below all three percentiles
		{Asset: "BTC", GridTime: gt, Bucket: models.BucketShort, Score: 1, Realized: 90, Q05: 95, Q50: 100, Q95: 110},
		// realized above q05, below q50 and q95
		{Asset: "BTC", GridTime: gt, Bucket: models.BucketShort, Score: 1, Realized: 98, Q05: 95, Q50: 100, Q95: 110},
		// realized above everything
		{Asset: "BTC", GridTime: gt, Bucket: models.BucketShort, Score: 1, Realized: 120, Q05: 95, Q50: 100, Q95: 110},
	}

	report := Aggregate(results, 24*time.Hour, now)
	require.NotNil(t, report.Coverage)
	assert.InDelta(t, 1.0/3.0, report.Coverage["5%"], 1e-12)
	assert.InDelta(t, 2.0/3.0, report.Coverage["50%"], 1e-12)
	assert.InDelta(t, 2.0/3.0, report.Coverage["95%"], 1e-12)
}

func TestAggregateOrderIndependent(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	results := []models.CRPSResult{
		scored("BTC", now.Add(-time.Hour), models.BucketShort, 3),
		scored("ETH", now.Add(-2*time.Hour), models.BucketMedium, 7),
		scored("SOL", now.Add(-3*time.Hour), models.BucketLong, 11),
	}
	reversed := []models.CRPSResult{results[2], results[1], results[0]}

	a := Aggregate(results, 24*time.Hour, now)
	b := Aggregate(reversed, 24*time.Hour, now)
	assert.Equal(t, a, b)
}

func TestAggregateTrendsSortedByAsset(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	results := []models.CRPSResult{
		scored("SOL", now.Add(-time.Hour), models.BucketShort, 9),
		scored("BTC", now.Add(-time.Hour), models.BucketShort, 2),
		scored("BTC", now.Add(-time.Hour), models.BucketShort, 4),
	}

	report := Aggregate(results, 24*time.Hour, now)
	require.Len(t, report.Trends, 2)
	assert.Equal(t, "BTC", report.Trends[0].Asset)
	assert.Equal(t, 3.0, report.Trends[0].MeanCRPS)
	assert.Equal(t, 2, report.Trends[0].Count)
	assert.Equal(t, "SOL", report.Trends[1].Asset)
}
