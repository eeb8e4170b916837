package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
	"github.com/duke524-dev/synth-subnet/internal/services/governance"
	"github.com/duke524-dev/synth-subnet/internal/services/scoring"
	"github.com/duke524-dev/synth-subnet/pkg/logger"
)

// TuningScheduler periodically aggregates stored scores into diagnostics and
// derives tuning suggestions. Suggestions are surfaced, never applied: every
// actual change still goes through the governance engine by an operator.
type TuningScheduler struct {
	sink       domrepo.ResultSink
	events     domrepo.EventPublisher
	log        *logger.Logger
	thresholds governance.SuggestionThresholds

	mu          sync.RWMutex
	lastReport  *models.DiagnosticsReport
	suggestions []models.TuningSuggestion
}

// NewTuningScheduler wires the diagnostics loop.
func NewTuningScheduler(sink domrepo.ResultSink, events domrepo.EventPublisher, log *logger.Logger, thresholds governance.SuggestionThresholds) *TuningScheduler {
	return &TuningScheduler{sink: sink, events: events, log: log, thresholds: thresholds}
}

// ErrNoResultSink is returned when diagnostics are requested while result
// storage is disabled.
var ErrNoResultSink = errors.New("no result sink configured")

// RunOnce builds a fresh report over the trailing window and refreshes the
// cached suggestions.
func (t *TuningScheduler) RunOnce(ctx context.Context, now time.Time, window time.Duration) (*models.DiagnosticsReport, error) {
	if t.sink == nil {
		return nil, ErrNoResultSink
	}
	results, err := t.sink.Query(ctx, now.Add(-window), now)
	if err != nil {
		return nil, err
	}

	report := scoring.Aggregate(results, window, now)
	suggestions := governance.Suggest(report, t.thresholds)

	t.mu.Lock()
	t.lastReport = report
	t.suggestions = suggestions
	t.mu.Unlock()

	for _, s := range suggestions {
		t.log.Info("tuning suggestion",
			logger.String("asset", s.Asset),
			logger.String("parameter", s.Parameter),
			logger.String("direction", s.Direction),
			logger.String("reason", s.Reason))
	}
	if len(suggestions) > 0 && t.events != nil {
		_ = t.events.Publish(ctx, "tuning_suggestions", suggestions)
	}
	return report, nil
}

// Start runs RunOnce on an interval until ctx ends. Without a result sink
// there is nothing to aggregate, so no loop is started.
func (t *TuningScheduler) Start(ctx context.Context, interval, window time.Duration) {
	if t.sink == nil {
		t.log.Info("diagnostics loop disabled, no result sink")
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := t.RunOnce(ctx, time.Now().UTC(), window); err != nil {
					t.log.Warn("diagnostics pass failed", logger.Error(err))
				}
			}
		}
	}()
}

// LastReport returns the most recent diagnostics report, or nil before the
// first pass.
func (t *TuningScheduler) LastReport() *models.DiagnosticsReport {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastReport
}

// Suggestions returns the suggestions from the most recent pass.
func (t *TuningScheduler) Suggestions() []models.TuningSuggestion {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]models.TuningSuggestion(nil), t.suggestions...)
}
