package models

import "time"

// DistributionFamily selects the innovation distribution for stochastic paths.
type DistributionFamily string

const (
	// FamilyStudentT draws shocks from a Student-t with the configured df,
	// rescaled so the step variance matches the scaled sigma.
	FamilyStudentT DistributionFamily = "student-t"
	// FamilyGaussian draws shocks from a normal with sd equal to the scaled sigma.
	FamilyGaussian DistributionFamily = "gaussian"
)

// VolatilityState is the per-asset EWMA variance estimate.
// It is mutated only by the volatility store's update path; everyone else
// works on value copies obtained via Snapshot.
type VolatilityState struct {
	Asset        string
	Sigma2OneMin float64 // 1-minute variance (EWMA)
	LastClose    float64 // last accepted 1-minute close
	LastUpdateTS time.Time
	Lambda       float64 // EWMA decay in (0,1)
	SampleCount  int64   // accepted observations since bootstrap
	StateVersion int     // snapshot format version
}

// ScalingParameters is the per-asset parameter set consumed by the scaler and
// the path generator. Values change only through governance.
type ScalingParameters struct {
	Asset               string
	SigmaCapDaily       float64 // clamp on the daily-equivalent volatility
	ShrinkHigh          float64 // <1, applied to high-frequency horizons
	Family              DistributionFamily
	DF                  float64 // Student-t degrees of freedom (>2)
	MarketHoursRequired bool    // equities: flatten outside the trading window
}

// HorizonLabel classifies a forecast request by sampling density.
type HorizonLabel string

const (
	HorizonHigh HorizonLabel = "high" // e.g. 60s increment over 1h
	HorizonLow  HorizonLabel = "low"  // e.g. 300s increment over 24h
)
