package governance

import "github.com/duke524-dev/synth-subnet/internal/domain/models"

// Per-asset starting parameters. Live values diverge from these only through
// applied ledger entries; an asset missing from a map uses the fallback.
var (
	defaultLambda = map[string]float64{
		"BTC":    0.94,
		"ETH":    0.93,
		"SOL":    0.90,
		"XAU":    0.97,
		"SPYX":   0.98,
		"NVDAX":  0.97,
		"TSLAX":  0.97,
		"AAPLX":  0.98,
		"GOOGLX": 0.98,
	}

	defaultDF = map[string]float64{
		"BTC":    5,
		"ETH":    5,
		"SOL":    4,
		"XAU":    10,
		"SPYX":   30,
		"NVDAX":  20,
		"TSLAX":  20,
		"AAPLX":  30,
		"GOOGLX": 30,
	}

	defaultSigmaCapDaily = map[string]float64{
		"BTC":    0.10,
		"ETH":    0.12,
		"SOL":    0.18,
		"XAU":    0.03,
		"SPYX":   0.02,
		"NVDAX":  0.04,
		"TSLAX":  0.05,
		"AAPLX":  0.02,
		"GOOGLX": 0.02,
	}

	defaultShrinkHigh = map[string]float64{
		"BTC": 0.9,
		"ETH": 0.9,
		"SOL": 0.9,
		"XAU": 0.95,
	}

	equityAssets = map[string]bool{
		"SPYX":   true,
		"NVDAX":  true,
		"TSLAX":  true,
		"AAPLX":  true,
		"GOOGLX": true,
	}
)

const (
	fallbackLambda        = 0.95
	fallbackDF            = 5.0
	fallbackSigmaCapDaily = 0.10
	fallbackShrinkHigh    = 1.0
)

// KnownAssets returns every asset with explicit defaults, sorted order not
// guaranteed.
func KnownAssets() []string {
	assets := make([]string, 0, len(defaultLambda))
	for asset := range defaultLambda {
		assets = append(assets, asset)
	}
	return assets
}

// IsEquity reports whether the asset trades on an exchange with fixed hours.
func IsEquity(asset string) bool {
	return equityAssets[asset]
}

func familyFor(asset string) models.DistributionFamily {
	if equityAssets[asset] {
		return models.FamilyGaussian
	}
	return models.FamilyStudentT
}

func lambdaDefault(asset string) float64 {
	if v, ok := defaultLambda[asset]; ok {
		return v
	}
	return fallbackLambda
}

func dfDefault(asset string) float64 {
	if v, ok := defaultDF[asset]; ok {
		return v
	}
	return fallbackDF
}

func sigmaCapDefault(asset string) float64 {
	if v, ok := defaultSigmaCapDaily[asset]; ok {
		return v
	}
	return fallbackSigmaCapDaily
}

func shrinkDefault(asset string) float64 {
	if v, ok := defaultShrinkHigh[asset]; ok {
		return v
	}
	return fallbackShrinkHigh
}
