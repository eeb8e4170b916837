package markethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

type stubParams struct {
	equity bool
}

func (p stubParams) ParamsFor(asset string) models.ScalingParameters {
	return models.ScalingParameters{Asset: asset, MarketHoursRequired: p.equity}
}

func (p stubParams) Lambda(asset string) float64 { return 0.95 }

func TestInTradingWindow(t *testing.T) {
	cases := []struct {
		name string
		ts   time.Time
		want bool
	}{
		{"weekday mid-session", time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC), true}, // Monday
		{"weekday at open", time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC), true},
		{"weekday just before open", time.Date(2026, 3, 2, 14, 29, 0, 0, time.UTC), false},
		{"weekday at close", time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC), false},
		{"weekday just before close", time.Date(2026, 3, 2, 20, 59, 0, 0, time.UTC), true},
		{"saturday mid-day", time.Date(2026, 3, 7, 16, 0, 0, 0, time.UTC), false},
		{"sunday mid-day", time.Date(2026, 3, 8, 16, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, InTradingWindow(tc.ts))
		})
	}
}

func TestShouldFlattenOnlyEquitiesOutsideHours(t *testing.T) {
	closed := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC) // Monday pre-market
	open := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)

	equities := NewGate(stubParams{equity: true})
	assert.True(t, equities.ShouldFlatten("SPYX", closed))
	assert.False(t, equities.ShouldFlatten("SPYX", open))

	crypto := NewGate(stubParams{equity: false})
	assert.False(t, crypto.ShouldFlatten("BTC", closed))
	assert.False(t, crypto.ShouldFlatten("BTC", open))
}

func TestShouldFlattenConvertsToUTC(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// 11:00 New York on a Monday is 16:00 UTC in March (EST through Mar 8).
	local := time.Date(2026, 3, 2, 11, 0, 0, 0, ny)
	gate := NewGate(stubParams{equity: true})
	assert.False(t, gate.ShouldFlatten("SPYX", local))
}
