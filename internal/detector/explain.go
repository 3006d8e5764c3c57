package detector

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/motorwatch/motorwatch/internal/domain"
	"github.com/motorwatch/motorwatch/internal/features"
)

// explainZScoreFloor is the minimum |z| for a feature to appear in an
// explanation.
const explainZScoreFloor = 1.5

// maxContributions caps the number of contributing features returned.
const maxContributions = 5

// Contribution describes one feature's deviation from the healthy profile.
type Contribution struct {
	Feature     string  `json:"feature"`
	Value       float64 `json:"value"`
	HealthyMean float64 `json:"healthy_mean"`
	HealthyStd  float64 `json:"healthy_std"`
	ZScore      float64 `json:"zscore"`
	Narrative   string  `json:"narrative"`
}

// Explain returns up to five features sorted by |z-score| whose deviation
// from the healthy training distribution is at least 1.5 sigma, each with a
// templated narrative.
func (d *Detector) Explain(vec features.Vector) []Contribution {
	var out []Contribution
	for _, name := range features.Names {
		val := vec[name]
		mean := d.healthyMeans[name]
		std := d.healthyStds[name]
		if std < 1e-9 {
			std = 1e-9
		}
		z := (val - mean) / std
		if math.Abs(z) < explainZScoreFloor {
			continue
		}
		out = append(out, Contribution{
			Feature:     name,
			Value:       val,
			HealthyMean: mean,
			HealthyStd:  std,
			ZScore:      math.Round(z*100) / 100,
			Narrative:   narrate(name, val, mean, z),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return math.Abs(out[i].ZScore) > math.Abs(out[j].ZScore)
	})
	if len(out) > maxContributions {
		out = out[:maxContributions]
	}
	return out
}

func narrate(feature string, value, healthyMean, z float64) string {
	signal, stat := splitFeature(feature)
	label := domain.SignalLabels[signal]
	if label == "" {
		label = signal
	}
	direction := "above"
	if z < 0 {
		direction = "below"
	}
	absZ := math.Abs(z)

	switch stat {
	case "std":
		return fmt.Sprintf("High %s variance (noise): σ=%.4f vs healthy σ=%.4f (%.1fσ %s normal)",
			strings.ToLower(label), value, healthyMean, absZ, direction)
	case "peak_to_peak":
		return fmt.Sprintf("%s transient spike: peak-to-peak=%.3f vs healthy=%.3f (%.1fσ %s normal)",
			label, value, healthyMean, absZ, direction)
	case "rms":
		return fmt.Sprintf("%s energy anomaly: RMS=%.4f vs healthy=%.4f (%.1fσ %s normal)",
			label, value, healthyMean, absZ, direction)
	case "mean":
		return fmt.Sprintf("%s mean shift: %.2f vs healthy=%.2f (%.1fσ %s normal)",
			label, value, healthyMean, absZ, direction)
	}
	return fmt.Sprintf("%s=%.4f deviates %.1fσ %s normal", feature, value, absZ, direction)
}

// splitFeature separates "<signal>_<stat>". peak_to_peak contains
// underscores and needs its own case.
func splitFeature(feature string) (signal, stat string) {
	if strings.HasSuffix(feature, "_peak_to_peak") {
		return strings.TrimSuffix(feature, "_peak_to_peak"), "peak_to_peak"
	}
	idx := strings.LastIndex(feature, "_")
	if idx < 0 {
		return feature, ""
	}
	return feature[:idx], feature[idx+1:]
}
