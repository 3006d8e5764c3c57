// Package rangecheck scores samples against baseline min/max ranges. It is
// the fallback scorer for assets that have a baseline but no trained
// detector, and one leg of the blended score when both exist.
package rangecheck

import (
	"math"

	"github.com/motorwatch/motorwatch/internal/baseline"
	"github.com/motorwatch/motorwatch/internal/domain"
)

// rangeFloor avoids division by zero for degenerate (constant) profiles.
const rangeFloor = 1e-3

// maxScore is the fallback scorer's clamp.
const maxScore = 0.95

// Score maps the latest sample's deviation outside the baseline observed
// ranges to an anomaly score in [0, maxScore]. Deviation per signal is the
// distance outside [min, max], normalised by the observed range; the four
// deviations are averaged and mapped through a piecewise calibration.
func Score(sample domain.RawSample, profile *baseline.Profile) float64 {
	var total float64
	var n int
	for _, sig := range domain.SignalColumns {
		sp, ok := profile.SignalProfiles[sig]
		if !ok {
			continue
		}
		total += signalDeviation(sample.Signal(sig), sp)
		n++
	}
	if n == 0 {
		return 0
	}
	return calibrate(total / float64(n))
}

func signalDeviation(x float64, sp baseline.SignalProfile) float64 {
	span := sp.Max - sp.Min
	if span < rangeFloor {
		span = rangeFloor
	}
	below := (sp.Min - x) / span
	above := (x - sp.Max) / span
	return math.Max(0, math.Max(below, above))
}

// calibrate maps a mean deviation to a score. Bands:
// d < 0.3 -> [0, 0.15]; [0.3, 1.0) -> [0.15, 0.36];
// [1.0, 2.5) -> [0.36, 0.66]; >= 2.5 -> [0.66, 0.95].
// Linear within each band.
func calibrate(d float64) float64 {
	switch {
	case d < 0.3:
		return d / 0.3 * 0.15
	case d < 1.0:
		return 0.15 + (d-0.3)/0.7*0.21
	case d < 2.5:
		return 0.36 + (d-1.0)/1.5*0.30
	default:
		return math.Min(maxScore, 0.66+(d-2.5)*0.12)
	}
}
