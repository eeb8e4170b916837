package usecase

import (
	"context"
	"errors"
	"time"

	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
	"github.com/duke524-dev/synth-subnet/internal/repository"
	"github.com/duke524-dev/synth-subnet/internal/services/volatility"
	"github.com/duke524-dev/synth-subnet/pkg/logger"
)

// StatePersister snapshots the volatility store on an interval and restores
// it on startup. Saves are rate limited to the min interval but forced at
// the force interval even when nothing changed, so the snapshot's age stays
// bounded.
type StatePersister struct {
	store    *volatility.Store
	snapshot domrepo.SnapshotStore
	log      *logger.Logger

	minInterval   time.Duration
	forceInterval time.Duration
	lastSave      time.Time
	lastCount     int64
}

// NewStatePersister wires persistence with the production intervals: save at
// most every 30s, force a save every 300s.
func NewStatePersister(store *volatility.Store, snapshot domrepo.SnapshotStore, log *logger.Logger) *StatePersister {
	return &StatePersister{
		store:         store,
		snapshot:      snapshot,
		log:           log,
		minInterval:   30 * time.Second,
		forceInterval: 300 * time.Second,
	}
}

// Restore loads the persisted snapshot into the store. A corrupt snapshot is
// a recoverable anomaly: it is logged, discarded, and every asset bootstraps
// fresh instead.
func (p *StatePersister) Restore() int {
	states, err := p.snapshot.Load()
	if err != nil {
		if errors.Is(err, repository.ErrCorruptState) {
			p.log.Warn("persisted state corrupt, bootstrapping fresh", logger.Error(err))
			return 0
		}
		p.log.Error("snapshot load failed", logger.Error(err))
		return 0
	}
	loaded := p.store.Restore(states)
	if loaded > 0 {
		p.log.Info("volatility state restored", logger.Int("assets", loaded))
	}
	return loaded
}

// Save persists the current state if the min interval elapsed and something
// changed, or unconditionally once the force interval elapsed.
func (p *StatePersister) Save(now time.Time) error {
	since := now.Sub(p.lastSave)
	if since < p.minInterval {
		return nil
	}

	states := p.store.All()
	var samples int64
	for _, st := range states {
		samples += st.SampleCount
	}
	if samples == p.lastCount && since < p.forceInterval {
		return nil
	}

	if err := p.snapshot.Save(states); err != nil {
		return err
	}
	p.lastSave = now
	p.lastCount = samples
	return nil
}

// Start saves on the min interval until ctx ends, with a final save on the
// way out.
func (p *StatePersister) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.minInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				if err := p.snapshot.Save(p.store.All()); err != nil {
					p.log.Error("final state save failed", logger.Error(err))
				}
				return
			case <-ticker.C:
				if err := p.Save(time.Now().UTC()); err != nil {
					p.log.Warn("state save failed", logger.Error(err))
				}
			}
		}
	}()
}
