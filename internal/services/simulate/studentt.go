package simulate

import (
	"math"
	"math/rand"
)

// standardT draws one standard Student-t variate with df degrees of freedom
// as N / sqrt(V/df) where N is standard normal and V is chi-squared(df).
// The chi-squared draw uses the gamma sampler below with shape df/2, scale 2.
func standardT(rng *rand.Rand, df float64) float64 {
	n := rng.NormFloat64()
	v := gammaDraw(rng, df/2.0) * 2.0
	return n / math.Sqrt(v/df)
}

// gammaDraw samples Gamma(shape, 1) using the Marsaglia-Tsang method, which
// needs only normal and uniform draws.
func gammaDraw(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		// Boost: Gamma(a) = Gamma(a+1) * U^(1/a)
		u := rng.Float64()
		return gammaDraw(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		x := rng.NormFloat64()
		v := 1.0 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1.0-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v
		}
	}
}
