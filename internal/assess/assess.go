// Package assess converts anomaly scores into health reports. This is where
// the rules live: the model outputs a score, this package assigns meaning.
// All logic is deterministic; same inputs, same report.
package assess

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/motorwatch/motorwatch/internal/domain"
)

// Health score thresholds on the 0-100 scale (100 = new, 0 = dead).
const (
	ThresholdCritical = 25
	ThresholdHigh     = 50
	ThresholdModerate = 75
)

// AssessmentVersion tags report metadata.
const AssessmentVersion = "1.0.0"

// rulRange is a remaining-useful-life band in days.
type rulRange struct{ lo, hi float64 }

// rulByRisk is the heuristic RUL lookup; reported values are band midpoints.
var rulByRisk = map[domain.RiskLevel]rulRange{
	domain.RiskCritical: {0, 1},
	domain.RiskHigh:     {1, 7},
	domain.RiskModerate: {7, 30},
	domain.RiskLow:      {30, 90},
}

// Assessor builds health reports with audit metadata.
type Assessor struct {
	DetectorVersion string
	BaselineID      string
}

// New returns an assessor stamped with the given model identifiers.
func New(detectorVersion, baselineID string) *Assessor {
	if detectorVersion == "" {
		detectorVersion = "pending"
	}
	if baselineID == "" {
		baselineID = "unknown"
	}
	return &Assessor{DetectorVersion: detectorVersion, BaselineID: baselineID}
}

// HealthScore maps an anomaly score in [0,1] to a health score in [0,100].
// Piecewise, monotonically non-increasing:
// [0, 0.15) -> 100..80, [0.15, 0.35) -> 80..50, [0.35, 1.0] -> 50..0.
func HealthScore(anomalyScore float64) int {
	a := math.Max(0, math.Min(1, anomalyScore))
	var h float64
	switch {
	case a < 0.15:
		h = 100 - (a/0.15)*20
	case a < 0.35:
		h = 80 - ((a-0.15)/0.20)*30
	default:
		h = 50 - ((a-0.35)/0.65)*50
	}
	return int(math.Round(math.Max(0, math.Min(100, h))))
}

// RiskLevel classifies a health score using the named thresholds.
func RiskLevel(healthScore int) domain.RiskLevel {
	switch {
	case healthScore < ThresholdCritical:
		return domain.RiskCritical
	case healthScore < ThresholdHigh:
		return domain.RiskHigh
	case healthScore < ThresholdModerate:
		return domain.RiskModerate
	default:
		return domain.RiskLow
	}
}

// EstimateRUL returns the heuristic remaining-useful-life in days: the
// midpoint of the risk level's band. Advisory, not a physics model.
func EstimateRUL(risk domain.RiskLevel) float64 {
	r, ok := rulByRisk[risk]
	if !ok {
		r = rulByRisk[domain.RiskLow]
	}
	return math.Round((r.lo+r.hi)/2*10) / 10
}

// Trend returns the slope of a run of anomaly scores, oldest first:
// (last - first) / (n - 1). The second return is false when n < 2.
func Trend(scores []float64) (float64, bool) {
	if len(scores) < 2 {
		return 0, false
	}
	n := len(scores)
	slope := (scores[n-1] - scores[0]) / float64(n-1)
	return math.Round(slope*1e4) / 1e4, true
}

// Assess produces a complete health report for the given anomaly score.
// explanations may come from the explainer; a CRITICAL report is guaranteed
// at least one explanation even when none were supplied.
func (a *Assessor) Assess(assetID string, anomalyScore float64, explanations []domain.Explanation) domain.HealthReport {
	health := HealthScore(anomalyScore)
	risk := RiskLevel(health)

	if risk == domain.RiskCritical && len(explanations) == 0 {
		explanations = []domain.Explanation{{
			Reason: fmt.Sprintf(
				"Critical anomaly detected (score: %.2f). Immediate attention required.", anomalyScore),
			RelatedFeatures: []string{},
			ConfidenceScore: 0.95,
		}}
	}
	if explanations == nil {
		explanations = []domain.Explanation{}
	}

	return domain.HealthReport{
		ReportID:              uuid.NewString(),
		Timestamp:             time.Now().UTC(),
		AssetID:               assetID,
		HealthScore:           health,
		RiskLevel:             risk,
		MaintenanceWindowDays: EstimateRUL(risk),
		Explanations:          explanations,
		Metadata: domain.ReportMetadata{
			ModelVersion:      fmt.Sprintf("detector:%s|baseline:%s", a.DetectorVersion, a.BaselineID),
			AssessmentVersion: AssessmentVersion,
		},
	}
}
