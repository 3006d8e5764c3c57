// Package baseline learns per-asset statistical profiles of healthy
// operation. Profiles are descriptive (what healthy data actually did), not
// prescriptive, and are immutable once built.
package baseline

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/motorwatch/motorwatch/internal/domain"
)

// MinCoverageRatio is the per-signal floor of non-missing samples required
// to build a profile.
const MinCoverageRatio = 0.80

// SignalProfile is the statistical profile of a single signal over the
// training window.
type SignalProfile struct {
	Mean        float64 `json:"mean"`
	Std         float64 `json:"std"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	SampleCount int     `json:"sample_count"`
}

// TrainingWindow records the period a profile was learned from.
type TrainingWindow struct {
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	SampleCount      int       `json:"sample_count"`
	ValidSampleRatio float64   `json:"valid_sample_ratio"`
}

// Profile is the complete baseline for one asset. One asset, one profile.
type Profile struct {
	BaselineID     string                   `json:"baseline_id"`
	AssetID        string                   `json:"asset_id"`
	CreatedAt      time.Time                `json:"created_at"`
	TrainingWindow TrainingWindow           `json:"training_window"`
	SignalProfiles map[string]SignalProfile `json:"signal_profiles"`
}

// Builder constructs profiles from healthy sensor data.
type Builder struct {
	MinCoverage float64
}

// NewBuilder returns a builder with the default coverage floor.
func NewBuilder() *Builder {
	return &Builder{MinCoverage: MinCoverageRatio}
}

// Build learns a profile from the given samples. Samples labelled faulty are
// dropped first; if start/end are non-zero the remainder is filtered to
// [start, end]. Per signal, at least MinCoverage of the retained samples must
// be non-missing (NaN marks a missing value) or the build fails with
// InsufficientCoverage.
func (b *Builder) Build(samples []domain.RawSample, assetID string, start, end time.Time) (*Profile, error) {
	const op = "baseline.Build"

	healthy := make([]domain.RawSample, 0, len(samples))
	for _, s := range samples {
		if s.IsFaulty {
			continue
		}
		if !start.IsZero() && s.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && s.Timestamp.After(end) {
			continue
		}
		healthy = append(healthy, s)
	}
	if len(healthy) == 0 {
		return nil, domain.E(domain.KindInsufficientData, op,
			"no healthy samples available for asset %q", assetID)
	}

	windowStart, windowEnd := healthy[0].Timestamp, healthy[0].Timestamp
	for _, s := range healthy[1:] {
		if s.Timestamp.Before(windowStart) {
			windowStart = s.Timestamp
		}
		if s.Timestamp.After(windowEnd) {
			windowEnd = s.Timestamp
		}
	}

	profiles := make(map[string]SignalProfile, len(domain.SignalColumns))
	totalValid := 0
	for _, sig := range domain.SignalColumns {
		prof, validCount, err := b.computeProfile(healthy, sig)
		if err != nil {
			return nil, err
		}
		profiles[sig] = prof
		totalValid += validCount
	}

	validRatio := float64(totalValid) / float64(len(healthy)*len(domain.SignalColumns))

	return &Profile{
		BaselineID: uuid.NewString(),
		AssetID:    assetID,
		CreatedAt:  time.Now().UTC(),
		TrainingWindow: TrainingWindow{
			Start:            windowStart,
			End:              windowEnd,
			SampleCount:      len(healthy),
			ValidSampleRatio: round6(validRatio),
		},
		SignalProfiles: profiles,
	}, nil
}

func (b *Builder) computeProfile(samples []domain.RawSample, sig string) (SignalProfile, int, error) {
	const op = "baseline.Build"

	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		x := s.Signal(sig)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		values = append(values, x)
	}

	coverage := float64(len(values)) / float64(len(samples))
	if coverage < b.MinCoverage {
		return SignalProfile{}, 0, domain.E(domain.KindInsufficientCoverage, op,
			"insufficient coverage for %q: %.1f%% < %.0f%% required",
			sig, coverage*100, b.MinCoverage*100)
	}

	var sum float64
	minV := math.Inf(1)
	maxV := math.Inf(-1)
	for _, x := range values {
		sum += x
		if x < minV {
			minV = x
		}
		if x > maxV {
			maxV = x
		}
	}
	mean := sum / float64(len(values))

	// Sample std (ddof=1); profiles describe spread of observations.
	var std float64
	if len(values) > 1 {
		var ss float64
		for _, x := range values {
			d := x - mean
			ss += d * d
		}
		std = math.Sqrt(ss / float64(len(values)-1))
	}

	return SignalProfile{
		Mean:        round6(mean),
		Std:         round6(std),
		Min:         round6(minV),
		Max:         round6(maxV),
		SampleCount: len(values),
	}, len(values), nil
}

func round6(x float64) float64 {
	return math.Round(x*1e6) / 1e6
}
