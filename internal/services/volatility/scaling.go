package volatility

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

// ErrInvalidScaling marks a non-positive or non-finite scaled volatility.
// This is a configuration fault: the request fails, nothing is substituted.
var ErrInvalidScaling = errors.New("invalid scaled volatility")

const minutesPerDay = 1440.0

// StepVolatility converts the stored 1-minute variance into the per-step
// volatility for the requested increment:
//
//	sigma_step = sqrt(sigma2_1m) * sqrt(step_minutes)
//
// then clamps it so a full day of steps cannot exceed the asset's daily cap
// (cap_step = cap_daily / sqrt(1440/step_minutes)), and finally applies the
// high-frequency shrink for densely sampled horizons.
func StepVolatility(st models.VolatilityState, params models.ScalingParameters, increment time.Duration, horizon models.HorizonLabel) (float64, error) {
	stepMinutes := increment.Minutes()
	if stepMinutes <= 0 {
		return 0, fmt.Errorf("%w: increment %v", ErrInvalidScaling, increment)
	}

	sigmaStep := math.Sqrt(st.Sigma2OneMin) * math.Sqrt(stepMinutes)

	if params.SigmaCapDaily > 0 {
		capStep := params.SigmaCapDaily / math.Sqrt(minutesPerDay/stepMinutes)
		if sigmaStep > capStep {
			sigmaStep = capStep
		}
	}

	if horizon == models.HorizonHigh && params.ShrinkHigh > 0 {
		sigmaStep *= params.ShrinkHigh
	}

	if sigmaStep <= 0 || math.IsNaN(sigmaStep) || math.IsInf(sigmaStep, 0) {
		return 0, fmt.Errorf("%w: asset %s sigma_step %v (sigma2_1m=%v cap=%v)",
			ErrInvalidScaling, st.Asset, sigmaStep, st.Sigma2OneMin, params.SigmaCapDaily)
	}
	return sigmaStep, nil
}
