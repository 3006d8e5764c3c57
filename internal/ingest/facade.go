// Package ingest is the engine facade: validation, derived power, fault
// stamping, window scoring, assessment and event evaluation behind one API.
// The HTTP layer and the lifecycle workers both drive this package.
package ingest

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/motorwatch/motorwatch/internal/assess"
	"github.com/motorwatch/motorwatch/internal/baseline"
	"github.com/motorwatch/motorwatch/internal/detector"
	"github.com/motorwatch/motorwatch/internal/domain"
	"github.com/motorwatch/motorwatch/internal/events"
	"github.com/motorwatch/motorwatch/internal/explain"
	"github.com/motorwatch/motorwatch/internal/features"
	"github.com/motorwatch/motorwatch/internal/rangecheck"
	"github.com/motorwatch/motorwatch/internal/state"
	"github.com/motorwatch/motorwatch/internal/store"
	"github.com/motorwatch/motorwatch/internal/telemetry"
)

// Options tunes the facade.
type Options struct {
	WindowSize        int
	BaselineTolerance float64
	MinBaselineRows   int
	BaselineDir       string
	BlendPolicy       rangecheck.BlendPolicy
	DetectorConfig    detector.Config
}

// DefaultOptions match the standard deployment.
func DefaultOptions() Options {
	return Options{
		WindowSize:        100,
		BaselineTolerance: 0.10,
		MinBaselineRows:   10,
		BaselineDir:       "artifacts/baselines",
		BlendPolicy:       rangecheck.PolicyWeighted,
		DetectorConfig:    detector.DefaultConfig(),
	}
}

// Facade wires the scoring pipeline together.
type Facade struct {
	opts    Options
	state   *state.Store
	writer  store.PointWriter
	engine  *events.Engine
	metrics *telemetry.Metrics
}

// New builds a facade. writer may degrade but must not be nil; use the
// memory store when persistence is off.
func New(opts Options, st *state.Store, writer store.PointWriter, engine *events.Engine, metrics *telemetry.Metrics) *Facade {
	if opts.WindowSize < features.MinWindow {
		opts.WindowSize = DefaultOptions().WindowSize
	}
	return &Facade{opts: opts, state: st, writer: writer, engine: engine, metrics: metrics}
}

// Ingest validates, enriches and records one sample, returning any event a
// completed window emitted. Persistence failures degrade to a log line and a
// metric; in-memory state always advances.
func (f *Facade) Ingest(ctx context.Context, sample domain.RawSample) (*domain.Event, error) {
	return f.ingest(ctx, sample, true)
}

// IngestBatch runs Ingest for each sample, stopping at the first validation
// failure. Returns every event the batch's completed windows emitted.
func (f *Facade) IngestBatch(ctx context.Context, samples []domain.RawSample) ([]domain.Event, error) {
	return f.ingestBatch(ctx, samples, true)
}

// IngestBatchLabeled ingests a worker batch whose is_faulty labels carry the
// batch-level score verdict; the per-sample baseline range stamp is skipped.
func (f *Facade) IngestBatchLabeled(ctx context.Context, samples []domain.RawSample) ([]domain.Event, error) {
	return f.ingestBatch(ctx, samples, false)
}

func (f *Facade) ingestBatch(ctx context.Context, samples []domain.RawSample, stamp bool) ([]domain.Event, error) {
	var emitted []domain.Event
	for _, s := range samples {
		ev, err := f.ingest(ctx, s, stamp)
		if err != nil {
			return emitted, err
		}
		if ev != nil {
			emitted = append(emitted, *ev)
		}
	}
	return emitted, nil
}

func (f *Facade) ingest(ctx context.Context, sample domain.RawSample, stamp bool) (*domain.Event, error) {
	if err := f.validate(sample); err != nil {
		return nil, err
	}
	sample.PowerKW = derivedPowerKW(sample)
	if stamp {
		f.stampFaulty(&sample)
	}

	f.state.Append(sample)
	f.metrics.SamplesIngested.WithLabelValues(sample.AssetID).Inc()

	if err := f.writer.WritePoint(ctx, sample); err != nil {
		f.metrics.StoreWrites.WithLabelValues("error").Inc()
		f.metrics.StoreWriteErrors.Inc()
		log.Warn().Err(err).Str("asset_id", sample.AssetID).Msg("durable write failed, continuing on memory state")
	} else {
		f.metrics.StoreWrites.WithLabelValues("ok").Inc()
	}

	// Event evaluation once per completed window. The monotonic ingest count
	// keeps the cadence after the sample ring is full.
	if f.state.TotalIngested(sample.AssetID)%f.opts.WindowSize == 0 {
		return f.evaluateEvents(ctx, sample.AssetID), nil
	}
	return nil, nil
}

func (f *Facade) validate(sample domain.RawSample) error {
	const op = "ingest.validate"
	reject := func(reason, format string, args ...any) error {
		f.metrics.IngestRejected.WithLabelValues(reason).Inc()
		return domain.E(domain.KindValidation, op, format, args...)
	}

	if sample.AssetID == "" {
		return reject("missing_asset_id", "asset_id is required")
	}
	if sample.Timestamp.IsZero() {
		return reject("missing_timestamp", "timestamp is required")
	}
	if sample.ClientPower || sample.PowerKW != 0 {
		// Power is derived server-side; a supplied power_kw is rejected even
		// when it is zero.
		return reject("client_power", "power_kw is computed by the engine and must not be supplied")
	}
	for _, sig := range domain.SignalColumns {
		v := sample.Signal(sig)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return reject("non_finite", "%s must be finite, got %v", sig, v)
		}
	}
	if sample.VoltageV < 0 || sample.CurrentA < 0 || sample.VibrationG < 0 {
		return reject("negative_signal", "voltage_v, current_a and vibration_g must be non-negative")
	}
	if sample.PowerFactor < 0 || sample.PowerFactor > 1 {
		return reject("power_factor_range", "power_factor must be in [0, 1], got %g", sample.PowerFactor)
	}
	return nil
}

// derivedPowerKW computes real power from the electrical signals, rounded to
// three decimals.
func derivedPowerKW(s domain.RawSample) float64 {
	return math.Round(s.VoltageV*s.CurrentA*s.PowerFactor) / 1000
}

// stampFaulty labels the sample against the asset's baseline envelope
// widened by the configured tolerance. Without a baseline the incoming label
// is kept as-is.
func (f *Facade) stampFaulty(sample *domain.RawSample) {
	p := f.state.Baseline(sample.AssetID)
	if p == nil {
		return
	}
	for _, sig := range domain.SignalColumns {
		sp, ok := p.SignalProfiles[sig]
		if !ok {
			continue
		}
		margin := (sp.Max - sp.Min) * f.opts.BaselineTolerance
		v := sample.Signal(sig)
		if v < sp.Min-margin || v > sp.Max+margin {
			sample.IsFaulty = true
			return
		}
	}
	sample.IsFaulty = false
}

// ScoreCurrent computes the blended anomaly score for the asset's latest
// window. Second return is the feature vector when the ML path ran.
func (f *Facade) ScoreCurrent(assetID string) (float64, features.Vector, error) {
	const op = "ingest.score_current"

	window := f.state.Recent(assetID, f.opts.WindowSize)
	if len(window) == 0 {
		return 0, nil, domain.E(domain.KindNotFound, op, "no samples for asset %q", assetID)
	}
	if len(window) < features.MinWindow {
		return 0, nil, domain.E(domain.KindInsufficientData, op,
			"asset %q has %d samples, need at least %d", assetID, len(window), features.MinWindow)
	}

	d := f.state.Detector(assetID)
	p := f.state.Baseline(assetID)
	if d == nil && p == nil {
		return 0, nil, domain.E(domain.KindInsufficientData, op, "asset %q has neither detector nor baseline", assetID)
	}

	start := time.Now()
	defer func() { f.metrics.ScoreDuration.Observe(time.Since(start).Seconds()) }()

	var mlScore float64
	var vec features.Vector
	if d != nil {
		v, err := features.Extract(window)
		if err != nil {
			return 0, nil, err
		}
		s, err := d.Score(v)
		if err != nil {
			return 0, nil, err
		}
		mlScore, vec = s, v
	}

	latest := window[len(window)-1]
	switch {
	case d != nil && p != nil:
		f.metrics.WindowsScored.WithLabelValues("blend").Inc()
		return rangecheck.Blend(mlScore, rangecheck.Score(latest, p), f.opts.BlendPolicy), vec, nil
	case d != nil:
		f.metrics.WindowsScored.WithLabelValues("ml").Inc()
		return mlScore, vec, nil
	default:
		f.metrics.WindowsScored.WithLabelValues("range").Inc()
		return rangecheck.Score(latest, p), nil, nil
	}
}

// AssessCurrent produces the asset's health report. Before a baseline exists
// the report is a provisional healthy one rather than an error.
func (f *Facade) AssessCurrent(ctx context.Context, assetID string) (domain.HealthReport, error) {
	const op = "ingest.assess_current"

	if f.state.SampleCount(assetID) == 0 {
		return domain.HealthReport{}, domain.E(domain.KindNotFound, op, "unknown asset %q", assetID)
	}

	d := f.state.Detector(assetID)
	p := f.state.Baseline(assetID)
	if d == nil && p == nil {
		report := f.pendingReport(assetID)
		cached := report
		f.state.SetReport(assetID, &cached)
		return report, nil
	}

	score, _, err := f.ScoreCurrent(assetID)
	if err != nil {
		return domain.HealthReport{}, err
	}

	detectorVersion, baselineID := "", ""
	if d != nil {
		detectorVersion = detector.Version
	}
	if p != nil {
		baselineID = p.BaselineID
	}

	risk := assess.RiskLevel(assess.HealthScore(score))
	var explanations []domain.Explanation
	if p != nil {
		latest := f.state.Recent(assetID, 1)[0]
		explanations = explain.Explain(latest, p, risk)
		if risk == domain.RiskLow {
			explanations = nil
		}
	}

	report := assess.New(detectorVersion, baselineID).Assess(assetID, score, explanations)

	f.state.RecordScore(assetID, score)
	if trend, ok := assess.Trend(f.state.RecentScores(assetID, 0)); ok {
		report.Metadata.ScoreTrend = &trend
	}
	if d != nil {
		snap := d.Snapshot()
		report.Metadata.ModelTrainedAt = &snap.TrainedAt
		report.Metadata.TrainingSamples = snap.TrainingCount
	}

	f.metrics.AnomalyScore.WithLabelValues(assetID).Set(score)
	f.metrics.HealthScore.WithLabelValues(assetID).Set(float64(report.HealthScore))

	cached := report
	f.state.SetReport(assetID, &cached)
	return report, nil
}

// LatestReport returns the asset's cached health report, or nil before the
// first assessment.
func (f *Facade) LatestReport(assetID string) *domain.HealthReport {
	return f.state.LatestReport(assetID)
}

// pendingReport is the provisional assessment before calibration.
func (f *Facade) pendingReport(assetID string) domain.HealthReport {
	r := assess.New("", "").Assess(assetID, 0, []domain.Explanation{{
		Reason:          "Baseline not yet established; provisional assessment only.",
		RelatedFeatures: []string{},
		ConfidenceScore: 0.5,
	}})
	r.HealthScore = 85
	r.RiskLevel = domain.RiskLow
	r.MaintenanceWindowDays = assess.EstimateRUL(domain.RiskLow)
	return r
}

// BuildBaseline computes and installs a baseline from the asset's healthy
// samples in [from, to], then tries to train a detector on the same data.
// Detector training failure is not fatal; the range fallback covers scoring.
func (f *Facade) BuildBaseline(ctx context.Context, assetID string, from, to time.Time) (*baseline.Profile, error) {
	const op = "ingest.build_baseline"

	samples := f.state.Recent(assetID, 0)
	if len(samples) == 0 {
		var err error
		samples, err = f.writer.QueryWindow(ctx, assetID, from, to, 0)
		if err != nil {
			return nil, err
		}
	}

	healthy := 0
	for _, s := range samples {
		if !s.IsFaulty && !s.Timestamp.Before(from) && !s.Timestamp.After(to) {
			healthy++
		}
	}
	if healthy < f.opts.MinBaselineRows {
		return nil, domain.E(domain.KindInsufficientData, op,
			"asset %q has %d healthy samples in window, need at least %d", assetID, healthy, f.opts.MinBaselineRows)
	}

	profile, err := baseline.NewBuilder().Build(samples, assetID, from, to)
	if err != nil {
		return nil, err
	}
	if f.opts.BaselineDir != "" {
		if _, err := baseline.Save(profile, f.opts.BaselineDir); err != nil {
			log.Warn().Err(err).Str("asset_id", assetID).Msg("baseline persisted to memory only")
		}
	}
	f.state.SetBaseline(assetID, profile)

	f.trainDetector(assetID, samples)
	return profile, nil
}

// trainDetector fits an isolation forest from the healthy windows in
// samples. Too little data is expected early on and only logged.
func (f *Facade) trainDetector(assetID string, samples []domain.RawSample) {
	healthy := make([]domain.RawSample, 0, len(samples))
	for _, s := range samples {
		if !s.IsFaulty {
			healthy = append(healthy, s)
		}
	}
	rows, err := features.ExtractMulti(healthy, f.opts.WindowSize)
	if err != nil {
		log.Debug().Err(err).Str("asset_id", assetID).Msg("feature extraction for training skipped")
		return
	}
	d, err := detector.Train(assetID, rows, f.opts.DetectorConfig)
	if err != nil {
		if domain.IsKind(err, domain.KindInsufficientTraining) {
			log.Info().Str("asset_id", assetID).Int("windows", len(rows)).
				Msg("not enough windows for detector, range fallback stays active")
			return
		}
		log.Error().Err(err).Str("asset_id", assetID).Msg("detector training failed")
		return
	}
	f.state.SetDetector(assetID, d)
}

// History returns the asset's most recent samples, oldest first.
func (f *Facade) History(ctx context.Context, assetID string, n int) ([]domain.RawSample, error) {
	samples := f.state.Recent(assetID, n)
	if len(samples) == 0 {
		return nil, domain.E(domain.KindNotFound, "ingest.history", "unknown asset %q", assetID)
	}
	return samples, nil
}

// evaluateEvents scores the latest window and feeds the transition engine.
func (f *Facade) evaluateEvents(ctx context.Context, assetID string) *domain.Event {
	score, vec, err := f.ScoreCurrent(assetID)
	if err != nil {
		// Not scoreable yet: no baseline or detector. Normal during warmup.
		return nil
	}
	ev := f.engine.Observe(ctx, assetID, score, vec)
	if ev != nil {
		f.metrics.EventsEmitted.WithLabelValues(ev.Type).Inc()
		log.Info().Str("asset_id", assetID).Str("type", ev.Type).
			Str("severity", ev.Severity).Float64("score", score).Msg("condition event")
	}
	return ev
}
