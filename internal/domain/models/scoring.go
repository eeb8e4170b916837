package models

import "time"

// HorizonBucket groups grid points by elapsed time from t0.
type HorizonBucket string

const (
	BucketShort  HorizonBucket = "short"  // <= 5 minutes out
	BucketMedium HorizonBucket = "medium" // <= 1 hour out
	BucketLong   HorizonBucket = "long"   // beyond 1 hour
)

// BucketForElapsed maps elapsed time from t0 to a horizon bucket.
func BucketForElapsed(elapsed time.Duration) HorizonBucket {
	switch {
	case elapsed <= 5*time.Minute:
		return BucketShort
	case elapsed <= time.Hour:
		return BucketMedium
	default:
		return BucketLong
	}
}

// CRPSResult is the score for one grid point of one prediction. Append-only.
// Missing marks grid points whose realized price was unavailable; Score is
// meaningless when Missing is true.
type CRPSResult struct {
	Asset      string        `json:"asset"`
	T0         time.Time     `json:"t0"`
	GridIndex  int           `json:"grid_index"`
	GridTime   time.Time     `json:"grid_time"`
	Bucket     HorizonBucket `json:"bucket"`
	Score      float64       `json:"crps"`
	Realized   float64       `json:"realized,omitempty"`
	Missing    bool          `json:"missing,omitempty"`
	ScoredAt   time.Time     `json:"scored_at"`
	ParamHash  string        `json:"parameter_hash,omitempty"`
	PathGapAbs float64       `json:"path0_gap_abs,omitempty"` // |path0 - realized|, gap diagnostic

	// Ensemble percentiles at this grid point, retained for coverage
	// diagnostics so aggregation never needs the raw paths again.
	Q05 float64 `json:"q05,omitempty"`
	Q50 float64 `json:"q50,omitempty"`
	Q95 float64 `json:"q95,omitempty"`
}

// CoverageRates holds the fraction of realized values falling at or below the
// 5/50/95 ensemble percentiles, keyed "5%", "50%", "95%".
type CoverageRates map[string]float64

// BucketStats summarizes the CRPS values that fell into one horizon bucket.
type BucketStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Count  int     `json:"count"`
}

// AssetTrend is the trailing-window mean CRPS for one asset.
type AssetTrend struct {
	Asset       string    `json:"asset"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	MeanCRPS    float64   `json:"mean_crps"`
	Count       int       `json:"count"`
}

// DiagnosticsReport aggregates scored results for governance review.
// Buckets and Coverage omit keys with no data rather than reporting zeros.
type DiagnosticsReport struct {
	GeneratedAt time.Time                     `json:"generated_at"`
	Window      time.Duration                 `json:"window"`
	Coverage    CoverageRates                 `json:"coverage_rates,omitempty"`
	Buckets     map[HorizonBucket]BucketStats `json:"horizon_statistics,omitempty"`
	Trends      []AssetTrend                  `json:"rolling_averages,omitempty"`
	Overall     *BucketStats                  `json:"overall_statistics,omitempty"`
}
