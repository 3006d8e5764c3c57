// Package features reduces raw 100 Hz windows to fixed-length statistical
// feature vectors. A 1-second window of 100 points becomes 16 numbers: for
// each of the four signals, its mean, population std, peak-to-peak and RMS.
//
// The std and peak-to-peak features are the reason this exists: a jitter
// fault can have a perfectly normal mean vibration while its variance is
// four times the healthy value, which a 1 Hz average would never see.
package features

import (
	"math"

	"github.com/motorwatch/motorwatch/internal/domain"
)

// StatNames are the statistics extracted per signal, in canonical order.
var StatNames = []string{"mean", "std", "peak_to_peak", "rms"}

// Names is the canonical ordering of all 16 feature keys:
// {signal}_{stat} for each signal and stat, signals outermost.
var Names = buildNames()

// Count is the feature vector dimension.
const Count = 16

// MinWindow is the smallest window the extractor accepts.
const MinWindow = 10

func buildNames() []string {
	names := make([]string, 0, Count)
	for _, sig := range domain.SignalColumns {
		for _, stat := range StatNames {
			names = append(names, sig+"_"+stat)
		}
	}
	return names
}

// Vector maps feature name to value. All producers emit exactly the keys in
// Names; consumers iterate in that order via Ordered.
type Vector map[string]float64

// Ordered returns the vector's values in canonical order. The second return
// is false when any canonical key is missing or non-finite.
func (v Vector) Ordered() ([]float64, bool) {
	out := make([]float64, 0, Count)
	for _, name := range Names {
		val, ok := v[name]
		if !ok || math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, false
		}
		out = append(out, val)
	}
	return out, true
}

// Extract computes the 16-dim feature vector over one window of samples.
// Statistics are population statistics (ddof=0), consistent with training.
// Returns a "window too small" validation error when len(window) < MinWindow.
func Extract(window []domain.RawSample) (Vector, error) {
	const op = "features.Extract"
	if len(window) < MinWindow {
		return nil, domain.E(domain.KindValidation, op,
			"window too small: %d samples, need >= %d", len(window), MinWindow)
	}

	n := float64(len(window))
	out := make(Vector, Count)

	for _, sig := range domain.SignalColumns {
		var sum, sumSq float64
		minV := math.Inf(1)
		maxV := math.Inf(-1)
		for _, s := range window {
			x := s.Signal(sig)
			sum += x
			sumSq += x * x
			if x < minV {
				minV = x
			}
			if x > maxV {
				maxV = x
			}
		}
		mean := sum / n
		variance := sumSq/n - mean*mean
		if variance < 0 { // float cancellation near zero
			variance = 0
		}
		out[sig+"_mean"] = mean
		out[sig+"_std"] = math.Sqrt(variance)
		out[sig+"_peak_to_peak"] = maxV - minV
		out[sig+"_rms"] = math.Sqrt(sumSq / n)
	}
	return out, nil
}

// ExtractMulti slices a longer stream into contiguous non-overlapping windows
// of windowSize samples and extracts one vector per complete window.
// Incomplete trailing samples are discarded.
func ExtractMulti(stream []domain.RawSample, windowSize int) ([]Vector, error) {
	const op = "features.ExtractMulti"
	if windowSize < MinWindow {
		return nil, domain.E(domain.KindValidation, op,
			"window size %d below minimum %d", windowSize, MinWindow)
	}
	var out []Vector
	for start := 0; start+windowSize <= len(stream); start += windowSize {
		vec, err := Extract(stream[start : start+windowSize])
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}
