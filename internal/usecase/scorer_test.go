package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
)

type memHistory struct {
	points map[string][]domrepo.PricePoint
	err    error
}

func (h *memHistory) Closes(ctx context.Context, asset string, from, to time.Time) ([]domrepo.PricePoint, error) {
	if h.err != nil {
		return nil, h.err
	}
	var out []domrepo.PricePoint
	for _, p := range h.points[asset] {
		if !p.TS.Before(from) && !p.TS.After(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

type memSink struct {
	stored []models.CRPSResult
	err    error
}

func (s *memSink) Store(ctx context.Context, results []models.CRPSResult) error {
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, results...)
	return nil
}

func (s *memSink) Query(ctx context.Context, from, to time.Time) ([]models.CRPSResult, error) {
	return s.stored, nil
}

func flatRecord(asset string, t0 time.Time, incrementSec int64, steps int, price float64) *models.PredictionRecord {
	paths := make([][]float64, models.EnsembleSize)
	for i := range paths {
		row := make([]float64, steps)
		for k := range row {
			row[k] = price
		}
		paths[i] = row
	}
	return &models.PredictionRecord{
		Asset:      asset,
		T0:         t0,
		Increment:  incrementSec,
		StepCount:  steps,
		Horizon:    models.HorizonLow,
		StartPrice: price,
		Family:     models.FamilyStudentT,
		DF:         5,
		Paths:      paths,
	}
}

func gridCloses(t0 time.Time, incrementSec int64, steps int, price float64) []domrepo.PricePoint {
	out := make([]domrepo.PricePoint, steps)
	for k := 0; k < steps; k++ {
		out[k] = domrepo.PricePoint{
			TS:    t0.Add(time.Duration(int64(k)*incrementSec) * time.Second),
			Price: price,
		}
	}
	return out
}

func TestScorerScoresDueRecords(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	predLog := &capturingLog{records: []*models.PredictionRecord{
		flatRecord("BTC", t0, 300, 4, 100),
	}}
	hist := &memHistory{points: map[string][]domrepo.PricePoint{
		"BTC": gridCloses(t0, 300, 4, 100),
	}}
	sink := &memSink{}
	s := NewScorer(predLog, hist, sink, nil, nopMetrics{}, usecaseLogger(t))

	now := t0.Add(2 * time.Hour)
	n, err := s.RunOnce(context.Background(), now, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, sink.stored, 4)
	for _, r := range sink.stored {
		assert.False(t, r.Missing)
		assert.Equal(t, 0.0, r.Score, "degenerate ensemble on the realized price")
	}
}

func TestScorerSkipsUnexpiredHorizon(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	predLog := &capturingLog{records: []*models.PredictionRecord{
		flatRecord("BTC", t0, 3600, 25, 100), // ends a day after t0
	}}
	sink := &memSink{}
	s := NewScorer(predLog, &memHistory{}, sink, nil, nopMetrics{}, usecaseLogger(t))

	n, err := s.RunOnce(context.Background(), t0.Add(time.Hour), 48*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, sink.stored)
}

func TestScorerDeduplicates(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	predLog := &capturingLog{records: []*models.PredictionRecord{
		flatRecord("BTC", t0, 300, 4, 100),
	}}
	hist := &memHistory{points: map[string][]domrepo.PricePoint{
		"BTC": gridCloses(t0, 300, 4, 100),
	}}
	sink := &memSink{}
	s := NewScorer(predLog, hist, sink, nil, nopMetrics{}, usecaseLogger(t))

	now := t0.Add(2 * time.Hour)
	_, err := s.RunOnce(context.Background(), now, 24*time.Hour)
	require.NoError(t, err)
	n, err := s.RunOnce(context.Background(), now.Add(time.Minute), 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "already scored")
	assert.Len(t, sink.stored, 4)
}

func TestScorerSkipsSinkHistoryAfterRestart(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	predLog := &capturingLog{records: []*models.PredictionRecord{
		flatRecord("BTC", t0, 300, 4, 100),
	}}
	hist := &memHistory{points: map[string][]domrepo.PricePoint{
		"BTC": gridCloses(t0, 300, 4, 100),
	}}
	sink := &memSink{}

	now := t0.Add(2 * time.Hour)
	first := NewScorer(predLog, hist, sink, nil, nopMetrics{}, usecaseLogger(t))
	n, err := first.RunOnce(context.Background(), now, 48*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, sink.stored, 4)

	// A fresh process sees the same due prediction but must pick up the
	// already-stored results instead of re-inserting them.
	second := NewScorer(predLog, hist, sink, nil, nopMetrics{}, usecaseLogger(t))
	n, err = second.RunOnce(context.Background(), now.Add(time.Minute), 48*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, sink.stored, 4)
}

func TestScorerMissingGridPointsScoreAsMissing(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	predLog := &capturingLog{records: []*models.PredictionRecord{
		flatRecord("BTC", t0, 300, 4, 100),
	}}
	closes := gridCloses(t0, 300, 4, 100)
	closes = append(closes[:2], closes[3:]...) // drop grid point 2
	hist := &memHistory{points: map[string][]domrepo.PricePoint{"BTC": closes}}
	sink := &memSink{}
	s := NewScorer(predLog, hist, sink, nil, nopMetrics{}, usecaseLogger(t))

	_, err := s.RunOnce(context.Background(), t0.Add(2*time.Hour), 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, sink.stored, 4)

	missing := 0
	for _, r := range sink.stored {
		if r.Missing {
			missing++
			assert.Equal(t, 2, r.GridIndex)
		}
	}
	assert.Equal(t, 1, missing)
}

func TestScorerRetriesAfterSinkFailure(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	predLog := &capturingLog{records: []*models.PredictionRecord{
		flatRecord("BTC", t0, 300, 4, 100),
	}}
	hist := &memHistory{points: map[string][]domrepo.PricePoint{
		"BTC": gridCloses(t0, 300, 4, 100),
	}}
	sink := &memSink{err: assert.AnError}
	s := NewScorer(predLog, hist, sink, nil, nopMetrics{}, usecaseLogger(t))

	now := t0.Add(2 * time.Hour)
	n, err := s.RunOnce(context.Background(), now, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	sink.err = nil
	n, err = s.RunOnce(context.Background(), now.Add(time.Minute), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, sink.stored, 4)
}
