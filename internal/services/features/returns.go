package features

import (
	"math"

	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
)

// LogReturnsFromPoints computes log returns r_t = ln(P_t / P_{t-1}) over a
// close series. Non-positive prices contribute a zero return rather than a
// NaN. Returns a slice of length len(points)-1, or nil if insufficient data.
func LogReturnsFromPoints(points []domrepo.PricePoint) []float64 {
	if len(points) < 2 {
		return nil
	}
	out := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Price
		cur := points[i].Price
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// MeanSquaredReturn is the zero-mean variance estimate mean(r^2) used to seed
// the EWMA on bootstrap.
func MeanSquaredReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range returns {
		sum += r * r
	}
	return sum / float64(len(returns))
}

// RealizedVolatility computes annualized realized volatility over the latest
// rolling window using the provided number of bars per year.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}
