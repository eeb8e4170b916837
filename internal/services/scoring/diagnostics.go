package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

// Aggregate folds scored results inside the trailing window ending at now
// into a diagnostics report. Missing results are skipped entirely; buckets
// and coverage keys with no contributing data are absent from the report,
// never reported as zero. The output does not depend on input order.
func Aggregate(results []models.CRPSResult, window time.Duration, now time.Time) *models.DiagnosticsReport {
	cutoff := now.Add(-window)

	var all []float64
	byBucket := map[models.HorizonBucket][]float64{}
	byAsset := map[string][]float64{}
	covered5, covered50, covered95, coverageN := 0, 0, 0, 0

	for _, r := range results {
		if r.Missing || r.GridTime.Before(cutoff) || r.GridTime.After(now) {
			continue
		}
		all = append(all, r.Score)
		byBucket[r.Bucket] = append(byBucket[r.Bucket], r.Score)
		byAsset[r.Asset] = append(byAsset[r.Asset], r.Score)

		coverageN++
		if r.Realized <= r.Q05 {
			covered5++
		}
		if r.Realized <= r.Q50 {
			covered50++
		}
		if r.Realized <= r.Q95 {
			covered95++
		}
	}

	report := &models.DiagnosticsReport{
		GeneratedAt: now,
		Window:      window,
	}
	if len(all) == 0 {
		return report
	}

	overall := bucketStats(all)
	report.Overall = &overall

	report.Buckets = make(map[models.HorizonBucket]models.BucketStats, len(byBucket))
	for bucket, scores := range byBucket {
		report.Buckets[bucket] = bucketStats(scores)
	}

	if coverageN > 0 {
		report.Coverage = models.CoverageRates{
			"5%":  float64(covered5) / float64(coverageN),
			"50%": float64(covered50) / float64(coverageN),
			"95%": float64(covered95) / float64(coverageN),
		}
	}

	assets := make([]string, 0, len(byAsset))
	for asset := range byAsset {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	report.Trends = make([]models.AssetTrend, 0, len(assets))
	for _, asset := range assets {
		scores := byAsset[asset]
		report.Trends = append(report.Trends, models.AssetTrend{
			Asset:       asset,
			WindowStart: cutoff,
			WindowEnd:   now,
			MeanCRPS:    mean(scores),
			Count:       len(scores),
		})
	}
	return report
}

func bucketStats(scores []float64) models.BucketStats {
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	return models.BucketStats{
		Mean:   mean(scores),
		Median: quantileSorted(sorted, 0.50),
		Std:    stddev(scores),
		Count:  len(scores),
	}
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := mean(vals)
	ss := 0.0
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}
