package repository

import (
	"context"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

// PricePoint is a timestamped close price from the external feed.
type PricePoint struct {
	TS    time.Time
	Price float64
}

// SpotSource fetches the latest usable spot price for an asset. The core
// validates every returned price before trusting it.
type SpotSource interface {
	Spot(ctx context.Context, asset string) (PricePoint, error)
}

// HistoricalSource fetches realized close prices for bootstrap and scoring.
// Missing minutes are allowed; the caller aligns to its own grid.
type HistoricalSource interface {
	Closes(ctx context.Context, asset string, from, to time.Time) ([]PricePoint, error)
}

// Tick is one live price observation from the streaming feed.
type Tick struct {
	Asset string
	TS    time.Time
	Price float64
}

// TickStream delivers live price ticks for background EWMA updates.
type TickStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan Tick, <-chan error)
	Close() error
}

// SnapshotStore persists volatility state with atomic replace-on-write.
// Load must fail closed: a corrupt snapshot is reported, never partially
// applied.
type SnapshotStore interface {
	Save(states map[string]models.VolatilityState) error
	Load() (map[string]models.VolatilityState, error)
}

// PredictionLog retains a sampled subset of generated ensembles for offline
// scoring. Append-only, time-partitioned.
type PredictionLog interface {
	Log(record *models.PredictionRecord) (logged bool, err error)
	Records(from, to time.Time, asset string) ([]*models.PredictionRecord, error)
}

// TuningLedger is the append-only record governance decisions derive from.
type TuningLedger interface {
	Append(entry models.TuningHistoryEntry) error
	Entries() ([]models.TuningHistoryEntry, error)
	StartDate() (time.Time, error)
}

// ResultSink stores CRPS results for diagnostics.
type ResultSink interface {
	Store(ctx context.Context, results []models.CRPSResult) error
	Query(ctx context.Context, from, to time.Time) ([]models.CRPSResult, error)
}

// EventPublisher emits forecast lifecycle events (prediction logged, scores
// written) to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
	Close() error
}

// Metrics is implemented by the Prometheus recorder in pkg/metrics.
type Metrics interface {
	RecordForecast(asset string, horizon string)
	RecordError(kind string)
	RecordSigmaStep(asset string, sigma float64)
	RecordLatency(op string, seconds float64)
	RecordTick(asset string, price float64)
}
