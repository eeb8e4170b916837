package repository

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

func TestLedgerAppendAndReplay(t *testing.T) {
	ledger := NewFileTuningLedger(filepath.Join(t.TempDir(), "gov", "tuning.jsonl"))

	first := models.TuningHistoryEntry{
		Asset: "BTC", Parameter: models.ParamLambda,
		OldValue: 0.94, NewValue: 0.95,
		Timestamp: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Reason:    "short-horizon CRPS",
	}
	second := first
	second.Parameter = models.ParamDF
	second.OldValue, second.NewValue = 5, 6
	second.Timestamp = second.Timestamp.Add(40 * 24 * time.Hour)

	require.NoError(t, ledger.Append(first))
	require.NoError(t, ledger.Append(second))

	entries, err := ledger.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first, entries[0])
	assert.Equal(t, second, entries[1])
}

func TestLedgerEmptyWhenAbsent(t *testing.T) {
	ledger := NewFileTuningLedger(filepath.Join(t.TempDir(), "tuning.jsonl"))
	entries, err := ledger.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLedgerRejectsDamagedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"asset\":\"BTC\"}\nnot json\n"), 0o644))

	_, err := NewFileTuningLedger(path).Entries()
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestLedgerStartDatePersists(t *testing.T) {
	dir := t.TempDir()
	ledger := NewFileTuningLedger(filepath.Join(dir, "tuning.jsonl"))

	first, err := ledger.StartDate()
	require.NoError(t, err)
	assert.False(t, first.IsZero())

	// A second ledger over the same directory sees the same date.
	again, err := NewFileTuningLedger(filepath.Join(dir, "tuning.jsonl")).StartDate()
	require.NoError(t, err)
	assert.True(t, first.Equal(again))
}
