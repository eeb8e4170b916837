package volatility

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
	domsvc "github.com/duke524-dev/synth-subnet/internal/domain/service"
)

// ErrInvalidObservation marks a rejected EWMA input. The state is left
// unchanged when this is returned.
var ErrInvalidObservation = errors.New("invalid observation")

// ErrStateMissing is returned when an asset has no volatility state yet;
// callers are expected to run Bootstrap first.
var ErrStateMissing = errors.New("volatility state missing")

type entry struct {
	mu sync.RWMutex
	st models.VolatilityState
}

// Store holds per-asset EWMA variance state. Updates and reads on one asset
// are serialized through the entry lock (single writer, shared readers);
// different assets proceed independently.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	params  domsvc.ParameterSource
}

// NewStore creates an empty store. params supplies the per-asset decay lambda
// used when states are created.
func NewStore(params domsvc.ParameterSource) *Store {
	return &Store{entries: make(map[string]*entry), params: params}
}

func (s *Store) entryFor(asset string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[asset]
	s.mu.RUnlock()
	return e, ok
}

// Initialize installs a state for an asset if none exists yet. The first
// writer wins: a concurrent second call observes the winner's state and
// returns it untouched, so bootstrap can never produce two divergent values.
func (s *Store) Initialize(asset string, sigma2, close float64, ts time.Time) models.VolatilityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[asset]; ok {
		e.mu.RLock()
		st := e.st
		e.mu.RUnlock()
		return st
	}
	st := models.VolatilityState{
		Asset:        asset,
		Sigma2OneMin: sigma2,
		LastClose:    close,
		LastUpdateTS: ts,
		Lambda:       s.params.Lambda(asset),
		StateVersion: 1,
	}
	s.entries[asset] = &entry{st: st}
	return st
}

// ApplyReturn folds one log return into the EWMA:
//
//	sigma2' = lambda*sigma2 + (1-lambda)*r^2
//
// Non-finite returns are rejected with ErrInvalidObservation and the state
// is left exactly as it was.
func (s *Store) ApplyReturn(asset string, r float64, ts time.Time) (models.VolatilityState, error) {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return models.VolatilityState{}, fmt.Errorf("%w: non-finite return %v for %s", ErrInvalidObservation, r, asset)
	}
	e, ok := s.entryFor(asset)
	if !ok {
		return models.VolatilityState{}, fmt.Errorf("%w: %s", ErrStateMissing, asset)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	lam := e.st.Lambda
	e.st.Sigma2OneMin = lam*e.st.Sigma2OneMin + (1-lam)*r*r
	e.st.LastUpdateTS = ts
	e.st.SampleCount++
	return e.st, nil
}

// ApplyClose derives the log return from a new close price and folds it in.
// Non-positive or non-finite closes are rejected without touching the state.
func (s *Store) ApplyClose(asset string, close float64, ts time.Time) (models.VolatilityState, error) {
	if close <= 0 || math.IsNaN(close) || math.IsInf(close, 0) {
		return models.VolatilityState{}, fmt.Errorf("%w: close %v for %s", ErrInvalidObservation, close, asset)
	}
	e, ok := s.entryFor(asset)
	if !ok {
		return models.VolatilityState{}, fmt.Errorf("%w: %s", ErrStateMissing, asset)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var r float64
	if e.st.LastClose > 0 {
		r = math.Log(close / e.st.LastClose)
	}
	lam := e.st.Lambda
	e.st.Sigma2OneMin = lam*e.st.Sigma2OneMin + (1-lam)*r*r
	e.st.LastClose = close
	e.st.LastUpdateTS = ts
	e.st.SampleCount++
	return e.st, nil
}

// Snapshot returns a value copy of the asset's state. The copy is complete
// and non-torn; callers never observe a half-applied update.
func (s *Store) Snapshot(asset string) (models.VolatilityState, bool) {
	e, ok := s.entryFor(asset)
	if !ok {
		return models.VolatilityState{}, false
	}
	e.mu.RLock()
	st := e.st
	e.mu.RUnlock()
	return st, true
}

// All returns a copy of every state, for persistence.
func (s *Store) All() map[string]models.VolatilityState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.VolatilityState, len(s.entries))
	for asset, e := range s.entries {
		e.mu.RLock()
		out[asset] = e.st
		e.mu.RUnlock()
	}
	return out
}

// Restore installs previously persisted states. Entries failing validation
// are skipped (the asset will bootstrap instead); existing entries are not
// overwritten.
func (s *Store) Restore(states map[string]models.VolatilityState) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	loaded := 0
	for asset, st := range states {
		if _, ok := s.entries[asset]; ok {
			continue
		}
		if !validState(st) {
			continue
		}
		st.Asset = asset
		s.entries[asset] = &entry{st: st}
		loaded++
	}
	return loaded
}

// Assets lists every asset with state.
func (s *Store) Assets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for asset := range s.entries {
		out = append(out, asset)
	}
	return out
}

func validState(st models.VolatilityState) bool {
	if st.Sigma2OneMin < 0 || math.IsNaN(st.Sigma2OneMin) || math.IsInf(st.Sigma2OneMin, 0) {
		return false
	}
	if st.Lambda <= 0 || st.Lambda >= 1 {
		return false
	}
	return true
}
