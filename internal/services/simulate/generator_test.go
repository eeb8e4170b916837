package simulate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

func btcRequest() Request {
	return Request{
		Asset:      "BTC",
		T0:         time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		Increment:  time.Minute,
		StepCount:  10,
		StartPrice: 50000,
		SigmaStep:  math.Sqrt(1e-6), // seeded variance 1e-6 at 60s steps
		Family:     models.FamilyStudentT,
		DF:         5,
	}
}

func TestGenerateShapeAndPathZero(t *testing.T) {
	ens, err := Generate(btcRequest(), 42)
	require.NoError(t, err)

	require.Len(t, ens.Paths, models.EnsembleSize)
	for i, p := range ens.Paths {
		require.Len(t, p, 10, "path %d", i)
		assert.Equal(t, ens.StartPrice, p[0], "path %d start", i)
	}
	for k, v := range ens.Paths[0] {
		assert.Equal(t, ens.StartPrice, v, "path 0 step %d must stay flat", k)
	}
	assert.False(t, ens.Flattened)
}

func TestGenerateDispersionGrowsWithStep(t *testing.T) {
	ens, err := Generate(btcRequest(), 42)
	require.NoError(t, err)

	spread := func(k int) float64 {
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := 1; i < models.EnsembleSize; i++ {
			v := ens.Paths[i][k]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		return hi - lo
	}

	assert.Zero(t, spread(0))
	assert.Greater(t, spread(1), 0.0)
	assert.Greater(t, spread(9), spread(1), "dispersion must grow with horizon")
}

func TestGenerateAllPricesPositiveFinite(t *testing.T) {
	req := btcRequest()
	req.SigmaStep = 0.05 // aggressive volatility
	ens, err := Generate(req, 7)
	require.NoError(t, err)
	for i, p := range ens.Paths {
		for k, v := range p {
			require.False(t, v <= 0 || math.IsNaN(v) || math.IsInf(v, 0), "path %d step %d = %v", i, k, v)
		}
	}
}

func TestGenerateDeterministicForSeed(t *testing.T) {
	a, err := Generate(btcRequest(), 99)
	require.NoError(t, err)
	b, err := Generate(btcRequest(), 99)
	require.NoError(t, err)
	assert.Equal(t, a.Paths, b.Paths)

	c, err := Generate(btcRequest(), 100)
	require.NoError(t, err)
	assert.NotEqual(t, a.Paths[1], c.Paths[1], "different seeds must differ")
}

func TestGenerateFlattenCollapsesEverything(t *testing.T) {
	req := btcRequest()
	req.Asset = "SPYX"
	req.Family = models.FamilyGaussian
	req.Flatten = true

	ens, err := Generate(req, 42)
	require.NoError(t, err)
	assert.True(t, ens.Flattened)
	require.Len(t, ens.Paths, models.EnsembleSize)
	for i, p := range ens.Paths {
		assert.Equal(t, ens.Paths[0], p, "path %d must equal path 0 when flattened", i)
	}
}

func TestGenerateGaussianFamily(t *testing.T) {
	req := btcRequest()
	req.Family = models.FamilyGaussian
	ens, err := Generate(req, 42)
	require.NoError(t, err)
	assert.Len(t, ens.Paths, models.EnsembleSize)
	assert.NotEqual(t, ens.Paths[1], ens.Paths[2])
}

func TestGenerateStudentTVarianceNormalization(t *testing.T) {
	// With the df/(df-2) rescale the per-step log-shock variance matches
	// sigma_step^2 regardless of df. Check the sample variance of the first
	// step's log returns against the target within a loose Monte Carlo band.
	req := btcRequest()
	req.StepCount = 2
	ens, err := Generate(req, 1234)
	require.NoError(t, err)

	var sum, sumSq float64
	n := models.EnsembleSize - 1
	for i := 1; i <= n; i++ {
		r := math.Log(ens.Paths[i][1] / ens.StartPrice)
		sum += r
		sumSq += r * r
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean

	target := req.SigmaStep * req.SigmaStep
	assert.InEpsilon(t, target, variance, 0.35)
}

func TestGenerateRejectsBadInputs(t *testing.T) {
	req := btcRequest()
	req.StartPrice = -1
	_, err := Generate(req, 1)
	var pathErr *PathGenerationError
	require.ErrorAs(t, err, &pathErr)

	req = btcRequest()
	req.StepCount = 0
	_, err = Generate(req, 1)
	require.ErrorAs(t, err, &pathErr)

	req = btcRequest()
	req.SigmaStep = 0
	_, err = Generate(req, 1)
	require.ErrorAs(t, err, &pathErr)

	req = btcRequest()
	req.DF = 2
	_, err = Generate(req, 1)
	require.ErrorAs(t, err, &pathErr)

	req = btcRequest()
	req.Family = "cauchy"
	_, err = Generate(req, 1)
	require.ErrorAs(t, err, &pathErr)
}

func TestRound8(t *testing.T) {
	assert.Equal(t, 50000.0, Round8(50000))
	assert.InDelta(t, 50000.123, Round8(50000.123), 1e-9)
	assert.InDelta(t, 50000.124, Round8(50000.1235), 1e-9)
	assert.InDelta(t, 0.00012345679, Round8(0.000123456789), 1e-15)
	assert.Equal(t, 0.0, Round8(0))
}
