// Package governance gates parameter changes behind timing and magnitude
// rules. Every decision is a pure function of the tuning ledger and the
// wall clock, so state is fully reconstructable from persisted history.
package governance

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
	"github.com/duke524-dev/synth-subnet/pkg/logger"
)

// ErrGovernanceRejected marks a proposal that failed eligibility, bounds, or
// step checks. The ledger and live values are untouched when it is returned.
var ErrGovernanceRejected = errors.New("governance rejected")

const (
	firstTuningWait   = 14 * 24 * time.Hour
	minBetweenTunings = 30 * 24 * time.Hour
	observationPeriod = 14 * 24 * time.Hour
	sigmaCapCadence   = 90 * 24 * time.Hour
)

type paramRule struct {
	min, max, maxStep float64
	integer           bool
}

var paramRules = map[string]paramRule{
	models.ParamLambda:        {min: 0.80, max: 0.99, maxStep: 0.01},
	models.ParamDF:            {min: 3, max: 50, maxStep: 1, integer: true},
	models.ParamSigmaCapDaily: {min: 0.01, max: 0.20, maxStep: 0.01},
}

// stepTolerance absorbs float64 representation error in |new - current|, so a
// legal full-step change like 0.94 -> 0.95 is not rejected.
const stepTolerance = 1e-9

// Engine derives governance state from the ledger and applies accepted
// proposals. It also serves the live parameter values consumed by the scaler
// and the path generator.
type Engine struct {
	ledger domrepo.TuningLedger
	log    *logger.Logger

	// proposeMu serializes proposals; mu guards the applied cache, which
	// mirrors the latest ledger entry per (asset, parameter) pair.
	proposeMu sync.Mutex
	mu        sync.RWMutex
	applied   map[string]models.TuningHistoryEntry
	start     time.Time
}

// NewEngine replays the ledger into a live-value cache. The ledger's start
// date anchors the first-tuning waiting period.
func NewEngine(ledger domrepo.TuningLedger, log *logger.Logger) (*Engine, error) {
	entries, err := ledger.Entries()
	if err != nil {
		return nil, fmt.Errorf("replay tuning ledger: %w", err)
	}
	start, err := ledger.StartDate()
	if err != nil {
		return nil, fmt.Errorf("ledger start date: %w", err)
	}

	applied := make(map[string]models.TuningHistoryEntry, len(entries))
	for _, entry := range entries {
		key := pairKey(entry.Asset, entry.Parameter)
		if prev, ok := applied[key]; !ok || entry.Timestamp.After(prev.Timestamp) {
			applied[key] = entry
		}
	}

	return &Engine{
		ledger:  ledger,
		log:     log,
		applied: applied,
		start:   start,
	}, nil
}

func pairKey(asset, parameter string) string {
	return asset + "|" + parameter
}

// Status derives the governance phase of one (asset, parameter) pair at now.
func (e *Engine) Status(asset, parameter string, now time.Time) models.GovernanceStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.statusLocked(asset, parameter, now)
}

func (e *Engine) statusLocked(asset, parameter string, now time.Time) models.GovernanceStatus {
	status := models.GovernanceStatus{Asset: asset, Parameter: parameter}

	if _, ok := paramRules[parameter]; !ok {
		status.Phase = models.PhaseIneligible
		status.Reason = fmt.Sprintf("unknown parameter %q", parameter)
		return status
	}

	last, tuned := e.applied[pairKey(asset, parameter)]
	if tuned {
		if until := last.Timestamp.Add(observationPeriod); now.Before(until) {
			status.Phase = models.PhaseObserving
			status.Until = &until
			status.Reason = fmt.Sprintf("observation period ends %s", until.Format(time.RFC3339))
			return status
		}
	}

	// One parameter change per asset at a time: a sibling parameter still in
	// observation blocks everything else on the asset.
	if sibling, until, ok := e.observingSiblingLocked(asset, parameter, now); ok {
		status.Phase = models.PhaseIneligible
		status.Reason = fmt.Sprintf("%s is in observation until %s", sibling, until.Format(time.RFC3339))
		return status
	}

	if !tuned {
		if elapsed := now.Sub(e.start); elapsed < firstTuningWait {
			status.Phase = models.PhaseIneligible
			status.Reason = fmt.Sprintf("first tuning requires %s since start (elapsed %s)",
				firstTuningWait, elapsed.Truncate(time.Hour))
			return status
		}
		status.Phase = models.PhaseEligible
		return status
	}

	since := now.Sub(last.Timestamp)
	if since < minBetweenTunings {
		status.Phase = models.PhaseIneligible
		status.Reason = fmt.Sprintf("minimum %s between tunings (elapsed %s)",
			minBetweenTunings, since.Truncate(time.Hour))
		return status
	}
	if parameter == models.ParamSigmaCapDaily && since < sigmaCapCadence {
		status.Phase = models.PhaseIneligible
		status.Reason = fmt.Sprintf("sigma cap changes limited to one per %s (elapsed %s)",
			sigmaCapCadence, since.Truncate(time.Hour))
		return status
	}

	status.Phase = models.PhaseEligible
	return status
}

func (e *Engine) observingSiblingLocked(asset, parameter string, now time.Time) (string, time.Time, bool) {
	for other := range paramRules {
		if other == parameter {
			continue
		}
		if entry, ok := e.applied[pairKey(asset, other)]; ok {
			if until := entry.Timestamp.Add(observationPeriod); now.Before(until) {
				return other, until, true
			}
		}
	}
	return "", time.Time{}, false
}

// CheckEligibility reports whether a proposal for the pair would pass the
// timing rules right now, with the blocking reason when it would not.
func (e *Engine) CheckEligibility(asset, parameter string, now time.Time) (bool, string) {
	status := e.Status(asset, parameter, now)
	if status.Phase == models.PhaseEligible {
		return true, "tuning eligible"
	}
	return false, status.Reason
}

// ProposeChange validates and, when accepted, applies a parameter change:
// one ledger entry is appended and the live value flips for the next
// ParamsFor/Lambda read. Rejections wrap ErrGovernanceRejected and mutate
// nothing.
func (e *Engine) ProposeChange(asset, parameter string, newValue float64, reason string, now time.Time) (string, error) {
	e.proposeMu.Lock()
	defer e.proposeMu.Unlock()

	rule, ok := paramRules[parameter]
	if !ok {
		return "", fmt.Errorf("%w: unknown parameter %q", ErrGovernanceRejected, parameter)
	}

	e.mu.RLock()
	status := e.statusLocked(asset, parameter, now)
	e.mu.RUnlock()
	if status.Phase != models.PhaseEligible {
		return "", fmt.Errorf("%w: %s", ErrGovernanceRejected, status.Reason)
	}

	if !isFinite(newValue) || newValue < rule.min || newValue > rule.max {
		return "", fmt.Errorf("%w: value %v out of bounds [%v, %v]",
			ErrGovernanceRejected, newValue, rule.min, rule.max)
	}
	if rule.integer && newValue != math.Trunc(newValue) {
		return "", fmt.Errorf("%w: %s must be an integer, got %v",
			ErrGovernanceRejected, parameter, newValue)
	}

	current := e.currentValue(asset, parameter)
	if step := math.Abs(newValue - current); step > rule.maxStep+stepTolerance {
		return "", fmt.Errorf("%w: step %.4f exceeds maximum %.4f",
			ErrGovernanceRejected, step, rule.maxStep)
	}

	entry := models.TuningHistoryEntry{
		Asset:     asset,
		Parameter: parameter,
		OldValue:  current,
		NewValue:  newValue,
		Timestamp: now,
		Reason:    reason,
	}
	if err := e.ledger.Append(entry); err != nil {
		return "", fmt.Errorf("append tuning entry: %w", err)
	}

	e.mu.Lock()
	e.applied[pairKey(asset, parameter)] = entry
	e.mu.Unlock()

	e.log.Info("parameter change applied",
		logger.String("asset", asset),
		logger.String("parameter", parameter),
		logger.Float64("old_value", current),
		logger.Float64("new_value", newValue),
		logger.String("reason", reason))

	return fmt.Sprintf("parameter change applied: %v -> %v", current, newValue), nil
}

func (e *Engine) currentValue(asset, parameter string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentValueLocked(asset, parameter)
}

func (e *Engine) currentValueLocked(asset, parameter string) float64 {
	if entry, ok := e.applied[pairKey(asset, parameter)]; ok {
		return entry.NewValue
	}
	switch parameter {
	case models.ParamLambda:
		return lambdaDefault(asset)
	case models.ParamDF:
		return dfDefault(asset)
	case models.ParamSigmaCapDaily:
		return sigmaCapDefault(asset)
	default:
		return math.NaN()
	}
}

// CurrentValues returns the live tunable values for every known asset.
func (e *Engine) CurrentValues() map[string]map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]map[string]float64)
	for _, asset := range KnownAssets() {
		out[asset] = map[string]float64{
			models.ParamLambda:        e.currentValueLocked(asset, models.ParamLambda),
			models.ParamDF:            e.currentValueLocked(asset, models.ParamDF),
			models.ParamSigmaCapDaily: e.currentValueLocked(asset, models.ParamSigmaCapDaily),
		}
	}
	return out
}

// ParamsFor returns the scaling parameter set for an asset with any applied
// tunings folded in. Implements service.ParameterSource.
func (e *Engine) ParamsFor(asset string) models.ScalingParameters {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return models.ScalingParameters{
		Asset:               asset,
		SigmaCapDaily:       e.currentValueLocked(asset, models.ParamSigmaCapDaily),
		ShrinkHigh:          shrinkDefault(asset),
		Family:              familyFor(asset),
		DF:                  e.currentValueLocked(asset, models.ParamDF),
		MarketHoursRequired: IsEquity(asset),
	}
}

// Lambda returns the live EWMA decay for an asset.
func (e *Engine) Lambda(asset string) float64 {
	return e.currentValue(asset, models.ParamLambda)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
