package models

import "time"

// EnsembleSize is the fixed number of trajectories per forecast, including
// the deterministic flat path at index 0.
const EnsembleSize = 1000

// PathEnsemble is one generated forecast: 1000 trajectories of StepCount
// prices each. Point k of every trajectory sits at T0 + k*Increment, so point
// 0 is the spot price shared by all trajectories. Immutable once created.
type PathEnsemble struct {
	Asset      string
	T0         time.Time
	Increment  time.Duration
	StepCount  int
	StartPrice float64
	Flattened  bool
	Paths      [][]float64 // len EnsembleSize, each len StepCount
}

// GridTime returns the timestamp of grid point k.
func (e *PathEnsemble) GridTime(k int) time.Time {
	return e.T0.Add(time.Duration(k) * e.Increment)
}

// PredictionRecord is the persisted form of an ensemble plus the parameter
// snapshot active when it was generated. It is what the offline evaluator
// consumes; the ensemble is replayed bit-for-bit, never regenerated.
type PredictionRecord struct {
	Asset         string             `json:"asset"`
	T0            time.Time          `json:"t0"`
	RequestTime   time.Time          `json:"request_time"`
	Increment     int64              `json:"time_increment"` // seconds
	StepCount     int                `json:"steps"`
	Horizon       HorizonLabel       `json:"horizon"`
	StartPrice    float64            `json:"start_price"`
	Lambda        float64            `json:"lambda"`
	DF            float64            `json:"df"`
	SigmaCapDaily float64            `json:"sigma_cap_daily"`
	ShrinkHigh    float64            `json:"shrink_high"`
	Family        DistributionFamily `json:"family"`
	ParameterHash string             `json:"parameter_hash"`
	ModelVersion  string             `json:"model_version"`
	LoggedAt      time.Time          `json:"logged_at"`
	LogReason     string             `json:"log_reason"`
	Paths         [][]float64        `json:"price_paths"`
}

// IncrementDuration returns the grid increment as a duration.
func (r *PredictionRecord) IncrementDuration() time.Duration {
	return time.Duration(r.Increment) * time.Second
}
