package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
	"github.com/duke524-dev/synth-subnet/internal/services/scoring"
	"github.com/duke524-dev/synth-subnet/pkg/logger"
)

// Scorer replays logged predictions against realized prices once their
// horizon has fully elapsed, and stores the per-grid-point CRPS results.
// The stored ensemble is consumed as-is; nothing is ever regenerated.
type Scorer struct {
	predLog domrepo.PredictionLog
	hist    domrepo.HistoricalSource
	sink    domrepo.ResultSink
	events  domrepo.EventPublisher
	metrics domrepo.Metrics
	log     *logger.Logger

	mu     sync.Mutex
	scored map[string]time.Time
	seeded bool
}

// NewScorer wires the offline scoring path.
func NewScorer(predLog domrepo.PredictionLog, hist domrepo.HistoricalSource, sink domrepo.ResultSink, events domrepo.EventPublisher, metrics domrepo.Metrics, log *logger.Logger) *Scorer {
	return &Scorer{
		predLog: predLog,
		hist:    hist,
		sink:    sink,
		events:  events,
		metrics: metrics,
		log:     log,
		scored:  make(map[string]time.Time),
	}
}

// RunOnce scores every due, not-yet-scored prediction whose grid ended before
// now, looking back over the trailing window. A prediction that fails to
// score is skipped and retried on the next run.
func (s *Scorer) RunOnce(ctx context.Context, now time.Time, lookback time.Duration) (int, error) {
	s.mu.Lock()
	needSeed := !s.seeded
	s.seeded = true
	s.mu.Unlock()
	if needSeed {
		s.seedScored(ctx, now, lookback)
	}

	records, err := s.predLog.Records(now.Add(-lookback), now, "")
	if err != nil {
		return 0, err
	}

	scoredCount := 0
	for _, rec := range records {
		gridEnd := rec.T0.Add(time.Duration(rec.StepCount-1) * rec.IncrementDuration())
		if gridEnd.After(now) {
			continue // horizon not elapsed yet
		}
		key := scoreKey(rec)
		s.mu.Lock()
		_, done := s.scored[key]
		s.mu.Unlock()
		if done {
			continue
		}

		results, err := s.scoreRecord(ctx, rec, now)
		if err != nil {
			s.metrics.RecordError("score")
			s.log.Warn("scoring failed",
				logger.String("asset", rec.Asset),
				logger.Time("t0", rec.T0),
				logger.Error(err))
			continue
		}
		if err := s.sink.Store(ctx, results); err != nil {
			s.metrics.RecordError("score_store")
			s.log.Warn("result store failed", logger.String("asset", rec.Asset), logger.Error(err))
			continue
		}

		s.mu.Lock()
		s.scored[key] = now
		s.mu.Unlock()
		scoredCount++

		if s.events != nil {
			_ = s.events.Publish(ctx, "scores_written", map[string]interface{}{
				"asset":  rec.Asset,
				"t0":     rec.T0.Format(time.RFC3339),
				"points": len(results),
			})
		}
	}
	s.gcScored(now, lookback)
	return scoredCount, nil
}

func (s *Scorer) scoreRecord(ctx context.Context, rec *models.PredictionRecord, now time.Time) ([]models.CRPSResult, error) {
	increment := rec.IncrementDuration()
	gridEnd := rec.T0.Add(time.Duration(rec.StepCount-1) * increment)

	points, err := s.hist.Closes(ctx, rec.Asset, rec.T0.Add(-increment), gridEnd.Add(increment))
	if err != nil {
		return nil, err
	}
	realized := scoring.AlignToGrid(points, rec.T0, increment, rec.StepCount)
	return scoring.Score(rec, realized, now)
}

// Start runs RunOnce on an interval until ctx ends.
func (s *Scorer) Start(ctx context.Context, interval, lookback time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.RunOnce(ctx, time.Now().UTC(), lookback)
				if err != nil {
					s.log.Warn("scoring pass failed", logger.Error(err))
					continue
				}
				if n > 0 {
					s.log.Info("scoring pass complete", logger.Int("predictions", n))
				}
			}
		}
	}()
}

// seedScored marks every (asset, t0) already present in the sink so a
// restart inside the lookback never re-scores and double-inserts the same
// prediction. A failed read is tolerated; the sink's replacing storage
// absorbs any duplicates that slip through.
func (s *Scorer) seedScored(ctx context.Context, now time.Time, lookback time.Duration) {
	results, err := s.sink.Query(ctx, now.Add(-lookback), now)
	if err != nil {
		s.log.Warn("scored-history read failed", logger.Error(err))
		return
	}
	s.mu.Lock()
	for _, r := range results {
		s.scored[resultKey(r.Asset, r.T0)] = now
	}
	s.mu.Unlock()
}

func scoreKey(rec *models.PredictionRecord) string {
	return resultKey(rec.Asset, rec.T0)
}

func resultKey(asset string, t0 time.Time) string {
	return asset + "|" + t0.UTC().Format(time.RFC3339Nano)
}

// gcScored drops dedup markers older than the lookback so the map stays
// bounded.
func (s *Scorer) gcScored(now time.Time, lookback time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, at := range s.scored {
		if now.Sub(at) > 2*lookback {
			delete(s.scored, key)
		}
	}
}
