// Package simulate turns a scaled volatility into the 1000-path forecast
// ensemble. Path 0 is the deterministic flat trajectory; paths 1..999 are
// stochastic draws from the asset's configured distribution family.
package simulate

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

// PathGenerationError is fatal: the request fails and nothing is returned.
// A non-finite or non-positive price is never clamped away silently.
type PathGenerationError struct {
	Asset  string
	Path   int
	Step   int
	Value  float64
	Detail string
}

func (e *PathGenerationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("path generation failed for %s: %s", e.Asset, e.Detail)
	}
	return fmt.Sprintf("path generation failed for %s: path %d step %d produced %v",
		e.Asset, e.Path, e.Step, e.Value)
}

// Request carries everything the generator needs besides randomness.
type Request struct {
	Asset      string
	T0         time.Time
	Increment  time.Duration
	StepCount  int
	StartPrice float64
	SigmaStep  float64
	Family     models.DistributionFamily
	DF         float64
	Flatten    bool
}

// Generate builds the ensemble. It is deterministic given the request and
// seed: the same inputs reproduce the same paths bit-for-bit.
//
// Prices follow a cumulative product of multiplicative shocks,
// S_k = S_0 * exp(sum of per-step log shocks). All 999*(StepCount-1) shocks
// are drawn in one batch before any path is assembled, so every stochastic
// path is identical in distribution and the draw dominates, not the loop.
func Generate(req Request, seed int64) (*models.PathEnsemble, error) {
	if req.StepCount <= 0 {
		return nil, &PathGenerationError{Asset: req.Asset, Detail: fmt.Sprintf("step count %d", req.StepCount)}
	}
	if req.StartPrice <= 0 || math.IsNaN(req.StartPrice) || math.IsInf(req.StartPrice, 0) {
		return nil, &PathGenerationError{Asset: req.Asset, Detail: fmt.Sprintf("start price %v", req.StartPrice)}
	}
	if !req.Flatten && (req.SigmaStep <= 0 || math.IsNaN(req.SigmaStep) || math.IsInf(req.SigmaStep, 0)) {
		return nil, &PathGenerationError{Asset: req.Asset, Detail: fmt.Sprintf("sigma_step %v", req.SigmaStep)}
	}

	start := Round8(req.StartPrice)
	paths := make([][]float64, models.EnsembleSize)

	// Path 0: deterministic, flat at the spot price. Used for gap scoring
	// only, never for distributional scoring.
	flat := make([]float64, req.StepCount)
	for k := range flat {
		flat[k] = start
	}
	paths[0] = flat

	if req.Flatten {
		// Market closed: dispersion forced to zero, shape preserved.
		for i := 1; i < models.EnsembleSize; i++ {
			p := make([]float64, req.StepCount)
			copy(p, flat)
			paths[i] = p
		}
		return assemble(req, start, paths, true)
	}

	shocks, err := drawShocks(req, seed)
	if err != nil {
		return nil, err
	}

	nShocks := req.StepCount - 1
	for i := 1; i < models.EnsembleSize; i++ {
		p := make([]float64, req.StepCount)
		p[0] = start
		logSum := 0.0
		base := (i - 1) * nShocks
		for k := 1; k < req.StepCount; k++ {
			logSum += shocks[base+k-1]
			price := Round8(req.StartPrice * math.Exp(logSum))
			if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
				return nil, &PathGenerationError{Asset: req.Asset, Path: i, Step: k, Value: price}
			}
			p[k] = price
		}
		paths[i] = p
	}

	return assemble(req, start, paths, false)
}

// drawShocks produces the full batch of per-step log shocks for all
// stochastic paths. Student-t draws are rescaled by sqrt(df/(df-2)) so the
// realized step variance equals sigma_step^2 regardless of df.
func drawShocks(req Request, seed int64) ([]float64, error) {
	n := (models.EnsembleSize - 1) * (req.StepCount - 1)
	shocks := make([]float64, n)
	rng := rand.New(rand.NewSource(seed))

	switch req.Family {
	case models.FamilyStudentT:
		if req.DF <= 2 {
			return nil, &PathGenerationError{Asset: req.Asset, Detail: fmt.Sprintf("student-t df %v <= 2", req.DF)}
		}
		scale := req.SigmaStep / math.Sqrt(req.DF/(req.DF-2))
		for i := range shocks {
			shocks[i] = scale * standardT(rng, req.DF)
		}
	case models.FamilyGaussian:
		for i := range shocks {
			shocks[i] = req.SigmaStep * rng.NormFloat64()
		}
	default:
		return nil, &PathGenerationError{Asset: req.Asset, Detail: fmt.Sprintf("unknown family %q", req.Family)}
	}
	return shocks, nil
}

func assemble(req Request, start float64, paths [][]float64, flattened bool) (*models.PathEnsemble, error) {
	ens := &models.PathEnsemble{
		Asset:      req.Asset,
		T0:         req.T0,
		Increment:  req.Increment,
		StepCount:  req.StepCount,
		StartPrice: start,
		Flattened:  flattened,
		Paths:      paths,
	}
	if err := ValidateEnsemble(ens); err != nil {
		return nil, err
	}
	return ens, nil
}

// ValidateEnsemble is the pre-return guard: path count, lengths, shared
// starting price, and strict positivity/finiteness of every value.
func ValidateEnsemble(e *models.PathEnsemble) error {
	if len(e.Paths) != models.EnsembleSize {
		return &PathGenerationError{Asset: e.Asset, Detail: fmt.Sprintf("%d paths, want %d", len(e.Paths), models.EnsembleSize)}
	}
	for i, p := range e.Paths {
		if len(p) != e.StepCount {
			return &PathGenerationError{Asset: e.Asset, Path: i, Detail: fmt.Sprintf("path %d length %d, want %d", i, len(p), e.StepCount)}
		}
		if p[0] != e.StartPrice {
			return &PathGenerationError{Asset: e.Asset, Path: i, Detail: fmt.Sprintf("path %d starts at %v, want %v", i, p[0], e.StartPrice)}
		}
		for k, v := range p {
			if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return &PathGenerationError{Asset: e.Asset, Path: i, Step: k, Value: v}
			}
		}
	}
	return nil
}

// Round8 rounds to 8 significant digits, the wire convention for prices.
func Round8(v float64) float64 {
	if v == 0 {
		return 0
	}
	magnitude := math.Floor(math.Log10(math.Abs(v)))
	scale := math.Pow(10, 7-magnitude)
	return math.Round(v*scale) / scale
}
