package explain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func healthySample() domain.RawSample {
	return domain.RawSample{
		AssetID: "Motor-01", VoltageV: 230, CurrentA: 15, PowerFactor: 0.92, VibrationG: 0.15,
	}
}

func TestLowRiskGetsNoExplanations(t *testing.T) {
	s := healthySample()
	s.VoltageV = 300
	assert.Empty(t, Explain(s, testProfile(), domain.RiskLow))
}

func TestExceedsMaxTemplate(t *testing.T) {
	s := healthySample()
	s.VibrationG = 1.5
	exps := Explain(s, testProfile(), domain.RiskCritical)
	require.NotEmpty(t, exps)
	assert.Contains(t, exps[0].Reason, "Vibration at 1.50 exceeds maximum observed baseline of 0.24")
	assert.Equal(t, []string{domain.SignalVibration}, exps[0].RelatedFeatures)
	assert.Equal(t, 0.99, exps[0].ConfidenceScore)
}

func TestBelowMinTemplate(t *testing.T) {
	s := healthySample()
	s.PowerFactor = 0.70
	exps := Explain(s, testProfile(), domain.RiskHigh)
	require.NotEmpty(t, exps)
	assert.Contains(t, exps[0].Reason, "Power Factor at 0.70 is below minimum observed baseline of 0.86")
}

func TestHighValueTemplateWithinRange(t *testing.T) {
	s := healthySample()
	s.VoltageV = 235 // within [224, 236] but z = 2.5
	exps := Explain(s, testProfile(), domain.RiskModerate)
	require.NotEmpty(t, exps)
	assert.Contains(t, exps[0].Reason, "unusually high")
	assert.Contains(t, exps[0].Reason, "2.5 standard deviations")
	assert.InDelta(t, 0.75, exps[0].ConfidenceScore, 1e-9)
}

func TestEpsilonSuppressesTinyDeviations(t *testing.T) {
	p := testProfile()
	sp := p.SignalProfiles[domain.SignalVoltage]
	sp.Std = 0.1 // tight baseline so a tiny offset would otherwise z-trigger
	p.SignalProfiles[domain.SignalVoltage] = sp

	s := healthySample()
	s.VoltageV = 231 // 0.43% off the mean: below the 1% floor
	exps := Explain(s, p, domain.RiskModerate)
	require.Len(t, exps, 1)
	assert.Contains(t, exps[0].Reason, "within expected operating envelope")
}

func TestRankedAndCapped(t *testing.T) {
	s := domain.RawSample{
		AssetID: "Motor-01", VoltageV: 280, CurrentA: 30, PowerFactor: 0.5, VibrationG: 2.0,
	}
	exps := Explain(s, testProfile(), domain.RiskCritical)
	require.Len(t, exps, 3)
	// Vibration z = (2.0-0.15)/0.03 ≈ 61.7, the strongest deviation.
	assert.Equal(t, []string{domain.SignalVibration}, exps[0].RelatedFeatures)
}

func TestZeroStdBaselineFallsBackToRangeChecks(t *testing.T) {
	p := testProfile()
	sp := p.SignalProfiles[domain.SignalVoltage]
	sp.Std = 0
	p.SignalProfiles[domain.SignalVoltage] = sp

	// Within [min, max]: with std 0 the z path must stay silent instead of
	// dividing by zero, so only the nominal fallback remains.
	s := healthySample()
	s.VoltageV = 234
	exps := Explain(s, p, domain.RiskHigh)
	require.Len(t, exps, 1)
	assert.Contains(t, exps[0].Reason, "combined pattern")

	// Outside the range the min/max template still fires, ranked at z = 0.
	s.VoltageV = 250
	exps = Explain(s, p, domain.RiskHigh)
	require.NotEmpty(t, exps)
	assert.Contains(t, exps[0].Reason, "exceeds maximum observed baseline")
	assert.Equal(t, 0.5, exps[0].ConfidenceScore)
}

func TestNominalFallbackWhenNothingNotable(t *testing.T) {
	exps := Explain(healthySample(), testProfile(), domain.RiskHigh)
	require.Len(t, exps, 1)
	assert.Contains(t, exps[0].Reason, "combined pattern")
	assert.Equal(t, 0.5, exps[0].ConfidenceScore)
}
