// Package markethours decides whether an equity forecast should be flattened
// because its start time falls outside the exchange trading window.
package markethours

import (
	"time"

	domsvc "github.com/duke524-dev/synth-subnet/internal/domain/service"
)

// NYSE regular session, expressed in UTC. Weekdays only.
const (
	openHourUTC    = 14
	openMinuteUTC  = 30
	closeHourUTC   = 21
	closeMinuteUTC = 0
)

// Gate answers ShouldFlatten per asset and request time. It is a request-time
// override only; volatility state is never touched.
type Gate struct {
	params domsvc.ParameterSource
}

// NewGate builds a gate reading the market-hours requirement from the live
// parameter set.
func NewGate(params domsvc.ParameterSource) *Gate {
	return &Gate{params: params}
}

// ShouldFlatten reports whether every stochastic path must collapse onto the
// flat path: true only for assets that require market hours and a t0 outside
// the trading window.
func (g *Gate) ShouldFlatten(asset string, t0 time.Time) bool {
	p := g.params.ParamsFor(asset)
	if !p.MarketHoursRequired {
		return false
	}
	return !InTradingWindow(t0.UTC())
}

// InTradingWindow reports whether ts falls inside the weekday UTC session.
func InTradingWindow(ts time.Time) bool {
	switch ts.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	h, m := ts.Hour(), ts.Minute()
	if h < openHourUTC || (h == openHourUTC && m < openMinuteUTC) {
		return false
	}
	if h > closeHourUTC || (h == closeHourUTC && m >= closeMinuteUTC) {
		return false
	}
	return true
}
