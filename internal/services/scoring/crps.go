// Package scoring reproduces the external authority's CRPS formula against
// stored ensembles and aggregates the results into diagnostics.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
)

// Score computes the empirical CRPS at every grid point of a stored
// prediction. realized must be aligned to the grid t0+k*increment and carry
// NaN where no realized price exists; such points yield a Missing result and
// the rest continue.
//
// The estimator over the stochastic members X_1..X_999 (path 0 excluded) is
//
//	CRPS = mean_i |X_i - y| - 0.5 * mean_{i,j} |X_i - X_j|
//
// computed as the literal double sum. That normalization is an external
// contract reproduced bit-for-bit; do not "fix" it or reorder the loops.
func Score(rec *models.PredictionRecord, realized []float64, now time.Time) ([]models.CRPSResult, error) {
	if len(rec.Paths) != models.EnsembleSize {
		return nil, fmt.Errorf("prediction for %s at %s has %d paths, want %d",
			rec.Asset, rec.T0.Format(time.RFC3339), len(rec.Paths), models.EnsembleSize)
	}
	if len(realized) != rec.StepCount {
		return nil, fmt.Errorf("realized series length %d, want %d", len(realized), rec.StepCount)
	}

	increment := rec.IncrementDuration()
	results := make([]models.CRPSResult, 0, rec.StepCount)
	for k := 0; k < rec.StepCount; k++ {
		gridTime := rec.T0.Add(time.Duration(k) * increment)
		res := models.CRPSResult{
			Asset:     rec.Asset,
			T0:        rec.T0,
			GridIndex: k,
			GridTime:  gridTime,
			Bucket:    models.BucketForElapsed(gridTime.Sub(rec.T0)),
			ScoredAt:  now,
			ParamHash: rec.ParameterHash,
		}

		y := realized[k]
		if math.IsNaN(y) {
			res.Missing = true
			results = append(results, res)
			continue
		}

		res.Realized = y
		res.Score = crpsAt(rec.Paths, k, y)
		res.PathGapAbs = math.Abs(rec.Paths[0][k] - y)
		res.Q05, res.Q50, res.Q95 = memberQuantiles(rec.Paths, k)
		results = append(results, res)
	}
	return results, nil
}

func crpsAt(paths [][]float64, k int, y float64) float64 {
	n := len(paths) - 1 // members 1..999

	sumAbs := 0.0
	for i := 1; i <= n; i++ {
		sumAbs += math.Abs(paths[i][k] - y)
	}
	term1 := sumAbs / float64(n)

	sumPair := 0.0
	for i := 1; i <= n; i++ {
		xi := paths[i][k]
		for j := 1; j <= n; j++ {
			sumPair += math.Abs(xi - paths[j][k])
		}
	}
	term2 := 0.5 * sumPair / float64(n*n)

	return term1 - term2
}

// memberQuantiles returns the 5/50/95 percentiles of the stochastic members
// at grid point k, with linear interpolation between order statistics.
func memberQuantiles(paths [][]float64, k int) (q05, q50, q95 float64) {
	n := len(paths) - 1
	vals := make([]float64, n)
	for i := 1; i <= n; i++ {
		vals[i-1] = paths[i][k]
	}
	sort.Float64s(vals)
	return quantileSorted(vals, 0.05), quantileSorted(vals, 0.50), quantileSorted(vals, 0.95)
}

func quantileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// AlignToGrid maps raw (timestamp, price) points onto the scoring grid,
// taking for each grid point the closest observation within half an
// increment. Unmatched grid points stay NaN; no interpolation.
func AlignToGrid(points []domrepo.PricePoint, t0 time.Time, increment time.Duration, stepCount int) []float64 {
	aligned := make([]float64, stepCount)
	for i := range aligned {
		aligned[i] = math.NaN()
	}
	tolerance := increment / 2
	for k := 0; k < stepCount; k++ {
		gridTime := t0.Add(time.Duration(k) * increment)
		bestDiff := tolerance + 1
		for _, pt := range points {
			diff := pt.TS.Sub(gridTime)
			if diff < 0 {
				diff = -diff
			}
			if diff <= tolerance && diff < bestDiff {
				bestDiff = diff
				aligned[k] = pt.Price
			}
		}
	}
	return aligned
}
