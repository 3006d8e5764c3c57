package domain

import (
	"encoding/json"
	"time"
)

// Signal column names, in canonical order. Every feature vector, baseline
// profile and storage row uses these exact keys.
const (
	SignalVoltage     = "voltage_v"
	SignalCurrent     = "current_a"
	SignalPowerFactor = "power_factor"
	SignalVibration   = "vibration_g"
)

// SignalColumns is the canonical signal ordering.
var SignalColumns = []string{SignalVoltage, SignalCurrent, SignalPowerFactor, SignalVibration}

// SignalLabels maps signal keys to display names used in explanations and
// event messages.
var SignalLabels = map[string]string{
	SignalVoltage:     "Voltage",
	SignalCurrent:     "Current",
	SignalPowerFactor: "Power Factor",
	SignalVibration:   "Vibration",
}

// RawSample is a single 100 Hz sensor reading for one asset.
// IsFaulty is a training/ground-truth label only; scoring never trusts it.
type RawSample struct {
	AssetID     string    `json:"asset_id" db:"asset_id"`
	AssetType   string    `json:"asset_type,omitempty" db:"asset_type"`
	Timestamp   time.Time `json:"timestamp" db:"ts"`
	VoltageV    float64   `json:"voltage_v" db:"voltage_v"`
	CurrentA    float64   `json:"current_a" db:"current_a"`
	PowerFactor float64   `json:"power_factor" db:"power_factor"`
	VibrationG  float64   `json:"vibration_g" db:"vibration_g"`
	PowerKW     float64   `json:"power_kw" db:"power_kw"`
	IsFaulty    bool      `json:"is_faulty" db:"is_faulty"`

	// ClientPower records that the decoded payload carried a power_kw key,
	// whatever its value. Power is derived server-side, so ingestion rejects
	// any sample with this set.
	ClientPower bool `json:"-" db:"-"`
}

// UnmarshalJSON decodes a sample while tracking whether the payload supplied
// power_kw at all; a literal 0 must be rejected the same as any other value.
func (s *RawSample) UnmarshalJSON(data []byte) error {
	type alias RawSample
	aux := struct {
		*alias
		PowerKW *float64 `json:"power_kw"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.PowerKW != nil {
		s.PowerKW = *aux.PowerKW
		s.ClientPower = true
	}
	return nil
}

// Signal returns the named signal value.
func (s RawSample) Signal(name string) float64 {
	switch name {
	case SignalVoltage:
		return s.VoltageV
	case SignalCurrent:
		return s.CurrentA
	case SignalPowerFactor:
		return s.PowerFactor
	case SignalVibration:
		return s.VibrationG
	}
	return 0
}

// RiskLevel is the ordered health classification: LOW < MODERATE < HIGH < CRITICAL.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Order returns the rank of the risk level for comparisons.
func (r RiskLevel) Order() int {
	switch r {
	case RiskLow:
		return 0
	case RiskModerate:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return -1
}

// Explanation is a single templated reason attached to a health report.
type Explanation struct {
	Reason          string   `json:"reason"`
	RelatedFeatures []string `json:"related_features"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// ReportMetadata carries audit fields for a health report.
type ReportMetadata struct {
	ModelVersion      string     `json:"model_version"`
	AssessmentVersion string     `json:"assessment_version"`
	ScoreTrend        *float64   `json:"score_trend,omitempty"`
	ModelTrainedAt    *time.Time `json:"model_trained_at,omitempty"`
	TrainingSamples   int        `json:"model_training_samples,omitempty"`
}

// HealthReport is the assessed health of one asset at one instant.
type HealthReport struct {
	ReportID               string         `json:"report_id"`
	Timestamp              time.Time      `json:"timestamp"`
	AssetID                string         `json:"asset_id"`
	HealthScore            int            `json:"health_score"`
	RiskLevel              RiskLevel      `json:"risk_level"`
	MaintenanceWindowDays  float64        `json:"maintenance_window_days"`
	Explanations           []Explanation  `json:"explanations"`
	Metadata               ReportMetadata `json:"metadata"`
}

// Event types emitted by the event engine.
const (
	EventAnomalyDetected = "ANOMALY_DETECTED"
	EventAnomalyCleared  = "ANOMALY_CLEARED"
	EventHeartbeat       = "HEARTBEAT"
)

// Event severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Event is a transition notification for downstream consumers.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	AssetID   string    `json:"asset_id"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
}

// SystemState is the process-wide lifecycle state.
type SystemState string

const (
	StateIdle              SystemState = "IDLE"
	StateCalibrating       SystemState = "CALIBRATING"
	StateMonitoringHealthy SystemState = "MONITORING_HEALTHY"
	StateFaultInjection    SystemState = "FAULT_INJECTION"
)

// FaultKind selects the fault-injection profile.
type FaultKind string

const (
	FaultSpike   FaultKind = "SPIKE"
	FaultDrift   FaultKind = "DRIFT"
	FaultJitter  FaultKind = "JITTER"
	FaultDefault FaultKind = "DEFAULT"
)

// Valid reports whether k names a known fault kind.
func (k FaultKind) Valid() bool {
	switch k {
	case FaultSpike, FaultDrift, FaultJitter, FaultDefault:
		return true
	}
	return false
}

// Severity scales a fault-injection profile.
type Severity string

const (
	SeverityMild   Severity = "MILD"
	SeverityMedium Severity = "MEDIUM"
	SeveritySevere Severity = "SEVERE"
)

// Valid reports whether s names a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityMild, SeverityMedium, SeveritySevere:
		return true
	}
	return false
}
