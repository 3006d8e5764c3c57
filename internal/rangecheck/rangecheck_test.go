package rangecheck

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/motorwatch/motorwatch/internal/baseline"
	"github.com/motorwatch/motorwatch/internal/domain"
)

func testProfile() *baseline.Profile {
	return &baseline.Profile{
		BaselineID: "b-1",
		AssetID:    "Motor-01",
		SignalProfiles: map[string]baseline.SignalProfile{
			domain.SignalVoltage:     {Mean: 230, Std: 2, Min: 224, Max: 236, SampleCount: 1000},
			domain.SignalCurrent:     {Mean: 15, Std: 1, Min: 12, Max: 18, SampleCount: 1000},
			domain.SignalPowerFactor: {Mean: 0.92, Std: 0.02, Min: 0.86, Max: 0.98, SampleCount: 1000},
			domain.SignalVibration:   {Mean: 0.15, Std: 0.03, Min: 0.06, Max: 0.24, SampleCount: 1000},
		},
	}
}

func inRangeSample() domain.RawSample {
	return domain.RawSample{
		AssetID: "Motor-01", VoltageV: 230, CurrentA: 15, PowerFactor: 0.92, VibrationG: 0.15,
	}
}

func TestInRangeScoresZero(t *testing.T) {
	s := Score(inRangeSample(), testProfile())
	assert.Equal(t, 0.0, s)
}

func TestMildExcursionScoresLow(t *testing.T) {
	sample := inRangeSample()
	sample.VoltageV = 240 // 4V over a 12V range: deviation 1/3, averaged over 4 signals
	s := Score(sample, testProfile())
	assert.Greater(t, s, 0.0)
	assert.Less(t, s, 0.15)
}

func TestSevereExcursionApproachesClamp(t *testing.T) {
	sample := domain.RawSample{
		AssetID: "Motor-01", VoltageV: 500, CurrentA: 100, PowerFactor: 0.0, VibrationG: 10,
	}
	s := Score(sample, testProfile())
	assert.Greater(t, s, 0.66)
	assert.LessOrEqual(t, s, 0.95)
}

func TestCalibrationBandBoundaries(t *testing.T) {
	assert.InDelta(t, 0.15, calibrate(0.3), 1e-9)
	assert.InDelta(t, 0.36, calibrate(1.0), 1e-9)
	assert.InDelta(t, 0.66, calibrate(2.5), 1e-9)
	assert.Equal(t, 0.95, calibrate(100))
}

func TestDegenerateRangeUsesFloor(t *testing.T) {
	p := testProfile()
	sp := p.SignalProfiles[domain.SignalVibration]
	sp.Min, sp.Max = 0.15, 0.15
	p.SignalProfiles[domain.SignalVibration] = sp

	sample := inRangeSample()
	sample.VibrationG = 0.16 // 0.01 outside a zero-width range
	s := Score(sample, p)
	assert.Greater(t, s, 0.0)
	assert.LessOrEqual(t, s, 0.95)
}

func TestBlendWeightedDefault(t *testing.T) {
	// Mid-range disagreement: 0.6*range + 0.4*ml.
	assert.InDelta(t, 0.6*0.5+0.4*0.4, Blend(0.4, 0.5, PolicyWeighted), 1e-9)
}

func TestBlendCriticalMLMildRange(t *testing.T) {
	assert.InDelta(t, 0.3*0.9+0.7*0.1, Blend(0.9, 0.1, PolicyWeighted), 1e-9)
}

func TestBlendHealthyMLFaultyRange(t *testing.T) {
	assert.InDelta(t, 0.8, Blend(0.1, 0.8, PolicyWeighted), 1e-9)
}

func TestBlendClampedToCeiling(t *testing.T) {
	assert.Equal(t, 0.98, Blend(1.0, 1.0, PolicyWeighted))
	assert.Equal(t, 0.98, Blend(1.0, 0.99, PolicyMax))
}

func TestBlendMaxPolicy(t *testing.T) {
	assert.Equal(t, 0.7, Blend(0.7, 0.2, PolicyMax))
	assert.Equal(t, 0.7, Blend(0.2, 0.7, PolicyMax))
}
