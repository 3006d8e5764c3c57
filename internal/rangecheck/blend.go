package rangecheck

import "math"

// BlendPolicy selects how the detector and range scores are combined when
// both are available for a window.
type BlendPolicy string

const (
	// PolicyWeighted is the canonical policy: trust the proportional range
	// signal when the two scorers disagree strongly, otherwise a weighted
	// average favouring the range check. Default.
	PolicyWeighted BlendPolicy = "weighted"
	// PolicyMax takes the higher of the two scores. Kept selectable because
	// one code path of the original system behaved this way.
	PolicyMax BlendPolicy = "max"
)

// blendCeiling caps every blended score.
const blendCeiling = 0.98

// Blend combines the ML score and the range score under the given policy.
// The result is clamped to [0, blendCeiling].
func Blend(mlScore, rangeScore float64, policy BlendPolicy) float64 {
	var out float64
	switch policy {
	case PolicyMax:
		out = math.Max(mlScore, rangeScore)
	default:
		switch {
		case mlScore > 0.7 && rangeScore < 0.4:
			// ML screams, range is mild: range tracks the raw signal
			// proportionally, so it gets the larger weight.
			out = 0.3*mlScore + 0.7*rangeScore
		case mlScore < 0.2 && rangeScore > 0.3:
			// ML missed a range excursion entirely: trust range fully.
			out = rangeScore
		default:
			out = 0.6*rangeScore + 0.4*mlScore
		}
	}
	if out < 0 {
		return 0
	}
	if out > blendCeiling {
		return blendCeiling
	}
	return out
}
