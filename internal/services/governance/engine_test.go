package governance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
	"github.com/duke524-dev/synth-subnet/pkg/logger"
)

type memoryLedger struct {
	start   time.Time
	entries []models.TuningHistoryEntry
}

func (l *memoryLedger) Append(entry models.TuningHistoryEntry) error {
	l.entries = append(l.entries, entry)
	return nil
}

func (l *memoryLedger) Entries() ([]models.TuningHistoryEntry, error) {
	return append([]models.TuningHistoryEntry(nil), l.entries...), nil
}

func (l *memoryLedger) StartDate() (time.Time, error) {
	return l.start, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func newTestEngine(t *testing.T, ledger *memoryLedger) *Engine {
	t.Helper()
	engine, err := NewEngine(ledger, testLogger(t))
	require.NoError(t, err)
	return engine
}

func TestFirstTuningWaitingPeriod(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := newTestEngine(t, &memoryLedger{start: start})

	ok, reason := engine.CheckEligibility("BTC", models.ParamLambda, start.Add(5*24*time.Hour))
	assert.False(t, ok)
	assert.Contains(t, reason, "first tuning")

	ok, _ = engine.CheckEligibility("BTC", models.ParamLambda, start.Add(15*24*time.Hour))
	assert.True(t, ok)
}

func TestProposeAppliesAndUpdatesLiveValue(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ledger := &memoryLedger{start: start}
	engine := newTestEngine(t, ledger)
	now := start.Add(20 * 24 * time.Hour)

	assert.Equal(t, 0.94, engine.Lambda("BTC"))

	msg, err := engine.ProposeChange("BTC", models.ParamLambda, 0.95, "short-horizon CRPS", now)
	require.NoError(t, err)
	assert.Contains(t, msg, "0.94")
	assert.Equal(t, 0.95, engine.Lambda("BTC"))

	require.Len(t, ledger.entries, 1)
	entry := ledger.entries[0]
	assert.Equal(t, "BTC", entry.Asset)
	assert.Equal(t, models.ParamLambda, entry.Parameter)
	assert.Equal(t, 0.94, entry.OldValue)
	assert.Equal(t, 0.95, entry.NewValue)
}

func TestProposeRejectsOversizedStep(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ledger := &memoryLedger{start: start}
	engine := newTestEngine(t, ledger)
	now := start.Add(20 * 24 * time.Hour)

	_, err := engine.ProposeChange("BTC", models.ParamLambda, 0.90, "too big", now)
	require.ErrorIs(t, err, ErrGovernanceRejected)
	assert.Empty(t, ledger.entries, "rejected proposal must not touch the ledger")
	assert.Equal(t, 0.94, engine.Lambda("BTC"))
}

func TestProposeRejectsOutOfBounds(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := newTestEngine(t, &memoryLedger{start: start})
	now := start.Add(20 * 24 * time.Hour)

	_, err := engine.ProposeChange("SOL", models.ParamDF, 2, "below minimum", now)
	require.ErrorIs(t, err, ErrGovernanceRejected)

	_, err = engine.ProposeChange("SOL", models.ParamDF, 4.5, "fractional df", now)
	require.ErrorIs(t, err, ErrGovernanceRejected)
}

func TestSecondProposalBlockedWhileObserving(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := newTestEngine(t, &memoryLedger{start: start})
	now := start.Add(20 * 24 * time.Hour)

	_, err := engine.ProposeChange("BTC", models.ParamLambda, 0.95, "first", now)
	require.NoError(t, err)

	// Same pair is Observing.
	status := engine.Status("BTC", models.ParamLambda, now.Add(24*time.Hour))
	assert.Equal(t, models.PhaseObserving, status.Phase)
	require.NotNil(t, status.Until)

	// A different parameter on the same asset is blocked too.
	_, err = engine.ProposeChange("BTC", models.ParamDF, 6, "second while observing", now.Add(24*time.Hour))
	require.ErrorIs(t, err, ErrGovernanceRejected)

	// A different asset proceeds independently.
	_, err = engine.ProposeChange("ETH", models.ParamLambda, 0.94, "independent", now.Add(24*time.Hour))
	require.NoError(t, err)
}

func TestMinimumTimeBetweenTunings(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := newTestEngine(t, &memoryLedger{start: start})
	first := start.Add(20 * 24 * time.Hour)

	_, err := engine.ProposeChange("BTC", models.ParamLambda, 0.95, "first", first)
	require.NoError(t, err)

	// Past observation but inside the 30 day minimum.
	ok, reason := engine.CheckEligibility("BTC", models.ParamLambda, first.Add(20*24*time.Hour))
	assert.False(t, ok)
	assert.Contains(t, reason, "between tunings")

	ok, _ = engine.CheckEligibility("BTC", models.ParamLambda, first.Add(31*24*time.Hour))
	assert.True(t, ok)
}

func TestSigmaCapQuarterlyCadence(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := newTestEngine(t, &memoryLedger{start: start})
	first := start.Add(20 * 24 * time.Hour)

	_, err := engine.ProposeChange("BTC", models.ParamSigmaCapDaily, 0.09, "first", first)
	require.NoError(t, err)

	ok, reason := engine.CheckEligibility("BTC", models.ParamSigmaCapDaily, first.Add(45*24*time.Hour))
	assert.False(t, ok)
	assert.Contains(t, reason, "sigma cap")

	ok, _ = engine.CheckEligibility("BTC", models.ParamSigmaCapDaily, first.Add(91*24*time.Hour))
	assert.True(t, ok)
}

func TestEngineRebuildsFromLedger(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ledger := &memoryLedger{start: start}
	first := newTestEngine(t, ledger)
	now := start.Add(20 * 24 * time.Hour)

	_, err := first.ProposeChange("BTC", models.ParamLambda, 0.95, "tune", now)
	require.NoError(t, err)

	// A fresh engine over the same ledger derives identical state.
	rebuilt := newTestEngine(t, ledger)
	assert.Equal(t, 0.95, rebuilt.Lambda("BTC"))
	assert.Equal(t, models.PhaseObserving, rebuilt.Status("BTC", models.ParamLambda, now.Add(time.Hour)).Phase)
}

func TestParamsForEquityVsCrypto(t *testing.T) {
	engine := newTestEngine(t, &memoryLedger{start: time.Now().UTC()})

	btc := engine.ParamsFor("BTC")
	assert.Equal(t, models.FamilyStudentT, btc.Family)
	assert.False(t, btc.MarketHoursRequired)
	assert.Equal(t, 5.0, btc.DF)
	assert.Equal(t, 0.10, btc.SigmaCapDaily)
	assert.Equal(t, 0.9, btc.ShrinkHigh)

	spy := engine.ParamsFor("SPYX")
	assert.Equal(t, models.FamilyGaussian, spy.Family)
	assert.True(t, spy.MarketHoursRequired)

	unknown := engine.ParamsFor("DOGE")
	assert.Equal(t, models.FamilyStudentT, unknown.Family)
	assert.Equal(t, 0.10, unknown.SigmaCapDaily)
	assert.Equal(t, 1.0, unknown.ShrinkHigh)
}

func TestCurrentValuesCoversKnownAssets(t *testing.T) {
	engine := newTestEngine(t, &memoryLedger{start: time.Now().UTC()})
	values := engine.CurrentValues()
	require.Contains(t, values, "BTC")
	require.Contains(t, values, "GOOGLX")
	assert.Equal(t, 0.94, values["BTC"][models.ParamLambda])
	assert.Equal(t, 30.0, values["GOOGLX"][models.ParamDF])
}
