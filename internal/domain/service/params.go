package service

import "github.com/duke524-dev/synth-subnet/internal/domain/models"

// ParameterSource exposes the live per-asset parameter set. The governance
// engine implements it; the scaler and path generator read through it so that
// applied tunings take effect on the next read.
type ParameterSource interface {
	ParamsFor(asset string) models.ScalingParameters
	Lambda(asset string) float64
}
