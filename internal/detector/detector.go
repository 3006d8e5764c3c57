// Package detector trains and scores the per-asset batch anomaly model: an
// isolation forest over the 16-dim window feature space, behind a standard
// scaler, with quantile-calibrated scores in [0, 1].
//
// Training contract: healthy windows only, one model per asset, pinned seed.
// A replacement model is always built fully before being installed.
package detector

import (
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/motorwatch/motorwatch/internal/domain"
	"github.com/motorwatch/motorwatch/internal/features"
)

// Version tags trained models for report metadata.
const Version = "1.0.0"

// MinTrainingWindows is the smallest usable training set.
const MinTrainingWindows = 10

// Default hyper-parameters.
const (
	DefaultContamination = 0.05
	DefaultNumTrees      = 150
	DefaultSeed          = 42
	defaultSubsample     = 256
)

// Config holds detector hyper-parameters.
type Config struct {
	Contamination float64
	NumTrees      int
	Seed          int64
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		Contamination: DefaultContamination,
		NumTrees:      DefaultNumTrees,
		Seed:          DefaultSeed,
	}
}

// Detector is a fitted per-asset outlier model. Immutable after Train;
// replaced atomically on recalibration.
type Detector struct {
	assetID string
	cfg     Config

	forest *forest
	scaler *scaler

	// healthy feature stats, kept for explainability
	healthyMeans map[string]float64
	healthyStds  map[string]float64

	threshold    float64 // 99th percentile of training raw scores
	offset       float64 // contamination quantile of training score samples
	trainedAt    time.Time
	trainedCount int
}

// Snapshot is the exportable summary of a trained detector.
type Snapshot struct {
	AssetID        string    `json:"asset_id"`
	Version        string    `json:"version"`
	TrainedAt      time.Time `json:"trained_at"`
	TrainingCount  int       `json:"training_sample_count"`
	ThresholdScore float64   `json:"threshold_score"`
}

type scaler struct {
	means []float64
	stds  []float64
}

func fitScaler(matrix [][]float64) *scaler {
	dims := len(matrix[0])
	n := float64(len(matrix))
	s := &scaler{means: make([]float64, dims), stds: make([]float64, dims)}
	for q := 0; q < dims; q++ {
		var sum float64
		for _, row := range matrix {
			sum += row[q]
		}
		mean := sum / n
		var ss float64
		for _, row := range matrix {
			d := row[q] - mean
			ss += d * d
		}
		std := math.Sqrt(ss / n)
		if std == 0 {
			std = 1 // constant column scales to zero deviation
		}
		s.means[q] = mean
		s.stds[q] = std
	}
	return s
}

func (s *scaler) transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for q, v := range row {
		out[q] = (v - s.means[q]) / s.stds[q]
	}
	return out
}

// Train fits a detector on healthy window feature vectors. Rows with missing
// or non-finite features are dropped; fewer than MinTrainingWindows usable
// rows fail with InsufficientTraining.
func Train(assetID string, rows []features.Vector, cfg Config) (*Detector, error) {
	const op = "detector.Train"

	if cfg.NumTrees <= 0 {
		cfg.NumTrees = DefaultNumTrees
	}
	if cfg.Contamination <= 0 {
		cfg.Contamination = DefaultContamination
	}

	matrix := make([][]float64, 0, len(rows))
	for _, row := range rows {
		ordered, ok := row.Ordered()
		if !ok {
			continue
		}
		matrix = append(matrix, ordered)
	}
	if len(matrix) < MinTrainingWindows {
		return nil, domain.E(domain.KindInsufficientTraining, op,
			"need >= %d training windows, got %d usable", MinTrainingWindows, len(matrix))
	}

	d := &Detector{
		assetID:      assetID,
		cfg:          cfg,
		healthyMeans: make(map[string]float64, features.Count),
		healthyStds:  make(map[string]float64, features.Count),
	}

	// Healthy stats per feature (sample std), used by Explain.
	n := float64(len(matrix))
	for q, name := range features.Names {
		var sum float64
		for _, row := range matrix {
			sum += row[q]
		}
		mean := sum / n
		var ss float64
		for _, row := range matrix {
			diff := row[q] - mean
			ss += diff * diff
		}
		std := 0.0
		if len(matrix) > 1 {
			std = math.Sqrt(ss / (n - 1))
		}
		d.healthyMeans[name] = mean
		d.healthyStds[name] = std
	}

	d.scaler = fitScaler(matrix)
	scaled := make([][]float64, len(matrix))
	for i, row := range matrix {
		scaled[i] = d.scaler.transform(row)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	d.forest = fitForest(scaled, cfg.NumTrees, defaultSubsample, rng)

	// Offset at the contamination quantile of training score samples, then
	// threshold at the 99th percentile of sign-normalised decision values.
	scoreSamples := make([]float64, len(scaled))
	for i, row := range scaled {
		scoreSamples[i] = d.forest.scoreSample(row)
	}
	d.offset = percentile(scoreSamples, 100*cfg.Contamination)

	raws := make([]float64, len(scaled))
	for i, ss := range scoreSamples {
		raws[i] = -(ss - d.offset)
	}
	d.threshold = percentile(raws, 99)

	d.trainedAt = time.Now().UTC()
	d.trainedCount = len(matrix)

	log.Info().
		Str("asset", assetID).
		Int("windows", d.trainedCount).
		Float64("threshold", d.threshold).
		Msg("batch detector trained")

	return d, nil
}

// Score returns the calibrated anomaly score in [0, 1] for one feature
// vector. All 16 canonical features must be present and finite.
func (d *Detector) Score(vec features.Vector) (float64, error) {
	const op = "detector.Score"
	ordered, ok := vec.Ordered()
	if !ok {
		return 0, domain.E(domain.KindValidation, op, "feature vector missing or non-finite features")
	}
	decision := d.forest.scoreSample(d.scaler.transform(ordered)) - d.offset
	return d.calibrate(-decision), nil
}

// ScoreWindow extracts features from a raw window and scores them.
func (d *Detector) ScoreWindow(window []domain.RawSample) (float64, error) {
	vec, err := features.Extract(window)
	if err != nil {
		return 0, err
	}
	return d.Score(vec)
}

func (d *Detector) calibrate(raw float64) float64 {
	factor := d.threshold * 1.5
	var calibrated float64
	if factor > 0 {
		calibrated = raw / factor
	} else {
		calibrated = raw + 0.5
	}
	return clamp01(calibrated)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Snapshot exports the model summary for status payloads.
func (d *Detector) Snapshot() Snapshot {
	return Snapshot{
		AssetID:        d.assetID,
		Version:        Version,
		TrainedAt:      d.trainedAt,
		TrainingCount:  d.trainedCount,
		ThresholdScore: d.threshold,
	}
}

// HealthyStats returns the per-feature healthy mean and sample std recorded
// at training time.
func (d *Detector) HealthyStats(feature string) (mean, std float64, ok bool) {
	mean, ok1 := d.healthyMeans[feature]
	std, ok2 := d.healthyStds[feature]
	return mean, std, ok1 && ok2
}
