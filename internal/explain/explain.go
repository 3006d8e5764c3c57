// Package explain turns baseline deviations into human-readable reasons for a
// health report. Deterministic templates only; no generated text.
package explain

import (
	"fmt"
	"math"
	"sort"

	"github.com/motorwatch/motorwatch/internal/baseline"
	"github.com/motorwatch/motorwatch/internal/domain"
)

const (
	// zThreshold is the minimum absolute z-score before a within-range value
	// is considered noteworthy.
	zThreshold = 2.0
	// relativeEpsilon suppresses explanations for deviations under 1% of the
	// baseline mean. Sensor noise, not signal.
	relativeEpsilon = 0.01
	// maxExplanations caps a report at its strongest reasons.
	maxExplanations = 3
)

type candidate struct {
	exp  domain.Explanation
	rank float64
}

// Explain builds up to maxExplanations reasons for the given sample against
// its baseline. A LOW-risk report gets no explanations. A non-LOW report with
// no individually notable signal gets a single nominal entry so the report is
// never silent.
func Explain(sample domain.RawSample, profile *baseline.Profile, risk domain.RiskLevel) []domain.Explanation {
	if risk == domain.RiskLow || profile == nil {
		return []domain.Explanation{}
	}

	cands := make([]candidate, 0, len(domain.SignalColumns))
	for _, sig := range domain.SignalColumns {
		sp, ok := profile.SignalProfiles[sig]
		if !ok {
			continue
		}
		if c, ok := describe(sig, sample.Signal(sig), sp); ok {
			cands = append(cands, c)
		}
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].rank > cands[j].rank })
	if len(cands) > maxExplanations {
		cands = cands[:maxExplanations]
	}

	out := make([]domain.Explanation, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.exp)
	}
	if len(out) == 0 {
		out = append(out, domain.Explanation{
			Reason:          "All monitored signals within expected operating envelope; anomaly driven by combined pattern across features.",
			RelatedFeatures: []string{},
			ConfidenceScore: 0.5,
		})
	}
	return out
}

func describe(sig string, value float64, sp baseline.SignalProfile) (candidate, bool) {
	// Suppress trivia: relative deviation under 1% of the mean.
	if sp.Mean != 0 && math.Abs(value-sp.Mean)/math.Abs(sp.Mean) < relativeEpsilon {
		return candidate{}, false
	}

	// A degenerate baseline (std 0) yields z = 0: only the min/max checks
	// can flag the signal then.
	var z float64
	if sp.Std > 0 {
		z = (value - sp.Mean) / sp.Std
	}
	label := domain.SignalLabels[sig]

	var reason string
	switch {
	case value > sp.Max:
		reason = fmt.Sprintf("%s at %.2f exceeds maximum observed baseline of %.2f", label, value, sp.Max)
	case value < sp.Min:
		reason = fmt.Sprintf("%s at %.2f is below minimum observed baseline of %.2f", label, value, sp.Min)
	case z > zThreshold:
		reason = fmt.Sprintf("%s at %.2f is unusually high (%.1f standard deviations above baseline mean %.2f)", label, value, z, sp.Mean)
	case z < -zThreshold:
		reason = fmt.Sprintf("%s at %.2f is unusually low (%.1f standard deviations below baseline mean %.2f)", label, value, -z, sp.Mean)
	default:
		return candidate{}, false
	}

	return candidate{
		exp: domain.Explanation{
			Reason:          reason,
			RelatedFeatures: []string{sig},
			ConfidenceScore: confidence(z),
		},
		rank: math.Abs(z),
	}, true
}

// confidence maps deviation magnitude to [0.5, 0.99].
func confidence(z float64) float64 {
	c := 0.5 + 0.1*math.Abs(z)
	if c > 0.99 {
		c = 0.99
	}
	return math.Round(c*100) / 100
}
