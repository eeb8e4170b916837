package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

func TestSuggestNothingWhenOverallGood(t *testing.T) {
	report := &models.DiagnosticsReport{
		Overall: &models.BucketStats{Mean: 12, Count: 500},
		Buckets: map[models.HorizonBucket]models.BucketStats{
			models.BucketShort: {Mean: 500, Count: 100},
		},
		Coverage: models.CoverageRates{"95%": 0.50},
	}
	assert.Empty(t, Suggest(report, DefaultSuggestionThresholds()))
}

func TestSuggestLambdaDownOnShortHorizon(t *testing.T) {
	report := &models.DiagnosticsReport{
		Overall: &models.BucketStats{Mean: 120, Count: 200},
		Buckets: map[models.HorizonBucket]models.BucketStats{
			models.BucketShort: {Mean: 150, Count: 80},
		},
	}
	suggestions := Suggest(report, DefaultSuggestionThresholds())
	require.Len(t, suggestions, 1)
	assert.Equal(t, models.ParamLambda, suggestions[0].Parameter)
	assert.Equal(t, "down", suggestions[0].Direction)
	assert.Equal(t, -0.01, suggestions[0].Change)
}

func TestSuggestIgnoresThinBuckets(t *testing.T) {
	report := &models.DiagnosticsReport{
		Overall: &models.BucketStats{Mean: 120, Count: 5},
		Buckets: map[models.HorizonBucket]models.BucketStats{
			models.BucketShort: {Mean: 150, Count: 3}, // under MinDataPoints
		},
	}
	assert.Empty(t, Suggest(report, DefaultSuggestionThresholds()))
}

func TestSuggestDFFromCoverage(t *testing.T) {
	base := &models.BucketStats{Mean: 120, Count: 200}

	low := &models.DiagnosticsReport{Overall: base, Coverage: models.CoverageRates{"95%": 0.90}}
	suggestions := Suggest(low, DefaultSuggestionThresholds())
	require.Len(t, suggestions, 1)
	assert.Equal(t, models.ParamDF, suggestions[0].Parameter)
	assert.Equal(t, "down", suggestions[0].Direction)

	high := &models.DiagnosticsReport{Overall: base, Coverage: models.CoverageRates{"95%": 0.99}}
	suggestions = Suggest(high, DefaultSuggestionThresholds())
	require.Len(t, suggestions, 1)
	assert.Equal(t, models.ParamDF, suggestions[0].Parameter)
	assert.Equal(t, "up", suggestions[0].Direction)
}

func TestSuggestSigmaCapOnLongHorizon(t *testing.T) {
	report := &models.DiagnosticsReport{
		Overall: &models.BucketStats{Mean: 250, Count: 300},
		Buckets: map[models.HorizonBucket]models.BucketStats{
			models.BucketLong: {Mean: 300, Count: 50},
		},
	}
	suggestions := Suggest(report, DefaultSuggestionThresholds())
	require.Len(t, suggestions, 1)
	assert.Equal(t, models.ParamSigmaCapDaily, suggestions[0].Parameter)
	assert.NotEmpty(t, suggestions[0].Note)
}

func TestSuggestNilReport(t *testing.T) {
	assert.Empty(t, Suggest(nil, DefaultSuggestionThresholds()))
	assert.Empty(t, Suggest(&models.DiagnosticsReport{}, DefaultSuggestionThresholds()))
}
