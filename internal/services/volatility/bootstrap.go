package volatility

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
	"github.com/duke524-dev/synth-subnet/internal/services/features"
	xlogger "github.com/duke524-dev/synth-subnet/pkg/logger"
)

// BootstrapConfig sizes the cold-start lookback per asset, with class-level
// fallback variances when history is unavailable.
type BootstrapConfig struct {
	LookbackHours  map[string]int // 0 means no history window (use fallback)
	FallbackSigma2 map[string]float64
	DefaultSigma2  float64
}

// DefaultBootstrapConfig mirrors the production defaults: crypto looks back
// 6h, gold 12h, equities skip the window entirely.
func DefaultBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{
		LookbackHours: map[string]int{
			"BTC": 6, "ETH": 6, "SOL": 6,
			"XAU": 12,
		},
		FallbackSigma2: map[string]float64{
			"BTC": 5e-6,
			"ETH": 8e-6,
			"SOL": 12e-6,
			"XAU": 2e-6,
		},
		DefaultSigma2: 1e-6,
	}
}

// Bootstrap produces the initial volatility state for assets seen for the
// first time. It runs at most once per asset per process; concurrent first
// accesses are collapsed onto a single fetch and the store's first-writer-wins
// Initialize guarantees every caller observes the same value.
type Bootstrap struct {
	store  *Store
	spot   domrepo.SpotSource
	hist   domrepo.HistoricalSource
	cfg    BootstrapConfig
	logger *xlogger.Logger

	mu       sync.Mutex
	inFlight map[string]*sync.Once
}

// NewBootstrap wires the cold-start path.
func NewBootstrap(store *Store, spot domrepo.SpotSource, hist domrepo.HistoricalSource, cfg BootstrapConfig, logger *xlogger.Logger) *Bootstrap {
	return &Bootstrap{
		store:    store,
		spot:     spot,
		hist:     hist,
		cfg:      cfg,
		logger:   logger,
		inFlight: make(map[string]*sync.Once),
	}
}

// Ensure returns the asset's state, bootstrapping it first if absent.
func (b *Bootstrap) Ensure(ctx context.Context, asset string) (models.VolatilityState, error) {
	if st, ok := b.store.Snapshot(asset); ok {
		return st, nil
	}

	b.mu.Lock()
	once, ok := b.inFlight[asset]
	if !ok {
		once = &sync.Once{}
		b.inFlight[asset] = once
	}
	b.mu.Unlock()

	var bootErr error
	once.Do(func() { bootErr = b.run(ctx, asset) })
	if bootErr != nil {
		// Allow a retry on the next access; the fetch failed, nothing was
		// installed.
		b.mu.Lock()
		delete(b.inFlight, asset)
		b.mu.Unlock()
		return models.VolatilityState{}, bootErr
	}

	st, ok := b.store.Snapshot(asset)
	if !ok {
		return models.VolatilityState{}, ErrStateMissing
	}
	return st, nil
}

func (b *Bootstrap) run(ctx context.Context, asset string) error {
	pt, err := b.spot.Spot(ctx, asset)
	if err != nil {
		return err
	}
	if pt.Price <= 0 || math.IsNaN(pt.Price) || math.IsInf(pt.Price, 0) {
		return ErrInvalidObservation
	}

	sigma2 := b.initialSigma2(ctx, asset, pt.TS)
	b.store.Initialize(asset, sigma2, pt.Price, pt.TS)
	b.logger.Info("volatility state bootstrapped",
		xlogger.String("asset", asset),
		xlogger.Float64("sigma2_1m", sigma2),
	)
	return nil
}

// initialSigma2 estimates the starting variance as mean(r^2) over the class
// lookback window, falling back to the class constant when history is thin.
func (b *Bootstrap) initialSigma2(ctx context.Context, asset string, now time.Time) float64 {
	fallback := b.cfg.DefaultSigma2
	if v, ok := b.cfg.FallbackSigma2[asset]; ok {
		fallback = v
	}

	hours := b.cfg.LookbackHours[asset]
	if hours <= 0 || b.hist == nil {
		return fallback
	}

	closes, err := b.hist.Closes(ctx, asset, now.Add(-time.Duration(hours)*time.Hour), now)
	if err != nil || len(closes) < 2 {
		if err != nil {
			b.logger.Warn("bootstrap history fetch failed, using fallback variance",
				xlogger.String("asset", asset), xlogger.Error(err))
		}
		return fallback
	}

	rets := features.LogReturnsFromPoints(closes)
	sigma2 := features.MeanSquaredReturn(rets)
	if sigma2 <= 0 || math.IsNaN(sigma2) || math.IsInf(sigma2, 0) {
		return fallback
	}
	return sigma2
}
