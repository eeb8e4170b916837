package governance

import (
	"fmt"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

// SuggestionThresholds tunes when diagnostics turn into suggestions.
type SuggestionThresholds struct {
	GoodCRPS      float64 // overall mean below this: no suggestions at all
	HighShortCRPS float64
	HighLongCRPS  float64
	CoverageLow   float64 // 95% coverage below this: tails too thin
	CoverageHigh  float64 // 95% coverage above this: tails too fat
	MinDataPoints int
}

// DefaultSuggestionThresholds returns the conservative production settings.
func DefaultSuggestionThresholds() SuggestionThresholds {
	return SuggestionThresholds{
		GoodCRPS:      50,
		HighShortCRPS: 100,
		HighLongCRPS:  200,
		CoverageLow:   0.93,
		CoverageHigh:  0.97,
		MinDataPoints: 10,
	}
}

// Suggest maps a diagnostics report to bounded tuning suggestions. It never
// applies anything; each suggestion still has to pass ProposeChange. An
// acceptable overall score short-circuits to no suggestions.
func Suggest(report *models.DiagnosticsReport, th SuggestionThresholds) []models.TuningSuggestion {
	var suggestions []models.TuningSuggestion
	if report == nil || report.Overall == nil {
		return suggestions
	}
	if report.Overall.Mean < th.GoodCRPS {
		return suggestions
	}

	if short, ok := report.Buckets[models.BucketShort]; ok {
		if short.Mean > th.HighShortCRPS && short.Count >= th.MinDataPoints {
			suggestions = append(suggestions, models.TuningSuggestion{
				Asset:     "ALL",
				Parameter: models.ParamLambda,
				Direction: "down",
				Change:    -0.01,
				Reason: fmt.Sprintf("short-horizon CRPS too high (%.2f > %.2f)",
					short.Mean, th.HighShortCRPS),
			})
		}
	}

	if cov95, ok := report.Coverage["95%"]; ok {
		switch {
		case cov95 < th.CoverageLow:
			suggestions = append(suggestions, models.TuningSuggestion{
				Asset:     "ALL",
				Parameter: models.ParamDF,
				Direction: "down",
				Change:    -1,
				Reason: fmt.Sprintf("95%% coverage too low (%.1f%% < %.1f%%), too many breaches",
					cov95*100, th.CoverageLow*100),
			})
		case cov95 > th.CoverageHigh:
			suggestions = append(suggestions, models.TuningSuggestion{
				Asset:     "ALL",
				Parameter: models.ParamDF,
				Direction: "up",
				Change:    1,
				Reason: fmt.Sprintf("95%% coverage too high (%.1f%% > %.1f%%), too conservative",
					cov95*100, th.CoverageHigh*100),
			})
		}
	}

	if long, ok := report.Buckets[models.BucketLong]; ok {
		if long.Mean > th.HighLongCRPS && long.Count >= th.MinDataPoints {
			suggestions = append(suggestions, models.TuningSuggestion{
				Asset:     "ALL",
				Parameter: models.ParamSigmaCapDaily,
				Direction: "down",
				Change:    -0.01,
				Reason: fmt.Sprintf("long-horizon CRPS high (%.2f > %.2f)",
					long.Mean, th.HighLongCRPS),
				Note: "restricted cadence parameter, at most one change per quarter",
			})
		}
	}

	return suggestions
}
