// Package usecase ties the engines together into the request pipeline and
// the background loops around it.
package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
	domsvc "github.com/duke524-dev/synth-subnet/internal/domain/service"
	"github.com/duke524-dev/synth-subnet/internal/services/markethours"
	"github.com/duke524-dev/synth-subnet/internal/services/simulate"
	"github.com/duke524-dev/synth-subnet/internal/services/volatility"
	"github.com/duke524-dev/synth-subnet/pkg/logger"
)

// ModelVersion tags every logged prediction with the generator revision.
const ModelVersion = "ewma-mc-1"

// ErrRequestTooLate marks a request whose grid origin is not in the future.
// Paths anchored at a past origin would never score fairly, so the request
// is refused both on entry and again after generation.
var ErrRequestTooLate = errors.New("request too late")

// ForecastRequest is one ensemble generation request. TimeLength is the full
// horizon in seconds; the grid has TimeLength/TimeIncrement+1 points with
// point 0 at T0.
type ForecastRequest struct {
	Asset         string
	T0            time.Time
	TimeIncrement int64 // seconds
	TimeLength    int64 // seconds
}

// StepCount returns the number of grid points, both endpoints included.
func (r ForecastRequest) StepCount() int {
	return int(r.TimeLength/r.TimeIncrement) + 1
}

// Horizon classifies the request by sampling density.
func (r ForecastRequest) Horizon() models.HorizonLabel {
	if r.TimeIncrement <= 60 {
		return models.HorizonHigh
	}
	return models.HorizonLow
}

// Forecaster runs the full pipeline: bootstrap if needed, one snapshot read,
// scale, gate, generate, and asynchronously retain a sampled record for
// offline scoring.
type Forecaster struct {
	boot    *volatility.Bootstrap
	params  domsvc.ParameterSource
	gate    *markethours.Gate
	spot    domrepo.SpotSource
	predLog domrepo.PredictionLog
	events  domrepo.EventPublisher
	metrics domrepo.Metrics
	log     *logger.Logger
	seed    func() int64
	now     func() time.Time
}

// NewForecaster wires the pipeline. spot may be nil to anchor paths on the
// last EWMA close; seed may be nil to use wall-clock nanoseconds per request.
func NewForecaster(
	boot *volatility.Bootstrap,
	params domsvc.ParameterSource,
	gate *markethours.Gate,
	spot domrepo.SpotSource,
	predLog domrepo.PredictionLog,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	log *logger.Logger,
	seed func() int64,
) *Forecaster {
	if seed == nil {
		seed = func() int64 { return time.Now().UnixNano() }
	}
	return &Forecaster{
		boot:    boot,
		params:  params,
		gate:    gate,
		spot:    spot,
		predLog: predLog,
		events:  events,
		metrics: metrics,
		log:     log,
		seed:    seed,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Forecast produces the 1000-path ensemble for one request.
func (f *Forecaster) Forecast(ctx context.Context, req ForecastRequest) (*models.PathEnsemble, error) {
	started := time.Now()

	if req.TimeIncrement <= 0 || req.TimeLength <= 0 || req.TimeLength%req.TimeIncrement != 0 {
		return nil, fmt.Errorf("invalid grid: increment %ds, length %ds", req.TimeIncrement, req.TimeLength)
	}
	now := f.now()
	if req.T0.IsZero() {
		req.T0 = now.Truncate(time.Minute).Add(time.Minute)
	}
	if !now.Before(req.T0) {
		f.metrics.RecordError("late_request")
		return nil, fmt.Errorf("%w: t0 %s, now %s", ErrRequestTooLate,
			req.T0.Format(time.RFC3339), now.Format(time.RFC3339))
	}

	state, err := f.boot.Ensure(ctx, req.Asset)
	if err != nil {
		f.metrics.RecordError("bootstrap")
		return nil, fmt.Errorf("bootstrap %s: %w", req.Asset, err)
	}

	startPrice := state.LastClose
	if f.spot != nil {
		if pt, err := f.spot.Spot(ctx, req.Asset); err != nil {
			f.metrics.RecordError("spot")
			f.log.Warn("spot fetch failed, anchoring on last close",
				logger.String("asset", req.Asset), logger.Error(err))
		} else {
			startPrice = pt.Price
		}
	}

	params := f.params.ParamsFor(req.Asset)
	increment := time.Duration(req.TimeIncrement) * time.Second
	horizon := req.Horizon()

	sigmaStep, err := volatility.StepVolatility(state, params, increment, horizon)
	if err != nil {
		f.metrics.RecordError("scaling")
		return nil, err
	}
	f.metrics.RecordSigmaStep(req.Asset, sigmaStep)

	flatten := f.gate.ShouldFlatten(req.Asset, req.T0)

	ensemble, err := simulate.Generate(simulate.Request{
		Asset:      req.Asset,
		T0:         req.T0,
		Increment:  increment,
		StepCount:  req.StepCount(),
		StartPrice: startPrice,
		SigmaStep:  sigmaStep,
		Family:     params.Family,
		DF:         params.DF,
		Flatten:    flatten,
	}, f.seed())
	if err != nil {
		f.metrics.RecordError("generate")
		return nil, err
	}

	// The grid origin must still be ahead of us once generation is done;
	// a response delivered after t0 is worthless to the caller.
	if done := f.now(); !done.Before(req.T0) {
		f.metrics.RecordError("late_request")
		return nil, fmt.Errorf("%w: generation finished at %s, t0 %s", ErrRequestTooLate,
			done.Format(time.RFC3339), req.T0.Format(time.RFC3339))
	}

	f.metrics.RecordForecast(req.Asset, string(horizon))
	f.metrics.RecordLatency("forecast", time.Since(started).Seconds())
	f.log.Debug("forecast generated",
		logger.String("asset", req.Asset),
		logger.String("horizon", string(horizon)),
		logger.Int("steps", ensemble.StepCount),
		logger.Float64("sigma_step", sigmaStep),
		logger.Bool("flattened", ensemble.Flattened))

	f.retain(ctx, req, state, params, horizon, ensemble)
	return ensemble, nil
}

// retain logs a sampled prediction record for offline scoring. Failures here
// never fail the forecast; they are observability losses, not request errors.
func (f *Forecaster) retain(ctx context.Context, req ForecastRequest, state models.VolatilityState, params models.ScalingParameters, horizon models.HorizonLabel, ensemble *models.PathEnsemble) {
	rec := &models.PredictionRecord{
		Asset:         req.Asset,
		T0:            ensemble.T0,
		RequestTime:   time.Now().UTC(),
		Increment:     req.TimeIncrement,
		StepCount:     ensemble.StepCount,
		Horizon:       horizon,
		StartPrice:    ensemble.StartPrice,
		Lambda:        state.Lambda,
		DF:            params.DF,
		SigmaCapDaily: params.SigmaCapDaily,
		ShrinkHigh:    params.ShrinkHigh,
		Family:        params.Family,
		ParameterHash: ParameterHash(req.Asset, state.Lambda, params),
		ModelVersion:  ModelVersion,
		Paths:         ensemble.Paths,
	}

	logged, err := f.predLog.Log(rec)
	if err != nil {
		f.metrics.RecordError("prediction_log")
		f.log.Warn("prediction log write failed", logger.String("asset", req.Asset), logger.Error(err))
		return
	}
	if !logged || f.events == nil {
		return
	}
	if err := f.events.Publish(ctx, "prediction_logged", map[string]interface{}{
		"asset":          rec.Asset,
		"t0":             rec.T0.Format(time.RFC3339),
		"horizon":        string(rec.Horizon),
		"parameter_hash": rec.ParameterHash,
	}); err != nil {
		f.log.Warn("prediction event publish failed", logger.Error(err))
	}
}

// ParameterHash fingerprints the parameter snapshot a prediction was made
// with: same inputs, same hash, across restarts.
func ParameterHash(asset string, lambda float64, params models.ScalingParameters) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"asset":           asset,
		"lambda":          lambda,
		"df":              params.DF,
		"sigma_cap_daily": params.SigmaCapDaily,
		"shrink_high":     params.ShrinkHigh,
		"family":          string(params.Family),
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16]
}
