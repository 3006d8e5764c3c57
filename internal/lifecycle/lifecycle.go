// Package lifecycle runs the engine's operating mode state machine:
// IDLE -> CALIBRATING -> MONITORING_HEALTHY <-> FAULT_INJECTION, with the
// background workers that feed synthetic telemetry in each mode.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/motorwatch/motorwatch/internal/domain"
	"github.com/motorwatch/motorwatch/internal/events"
	"github.com/motorwatch/motorwatch/internal/ingest"
	"github.com/motorwatch/motorwatch/internal/rangecheck"
	"github.com/motorwatch/motorwatch/internal/state"
	"github.com/motorwatch/motorwatch/internal/store"
	"github.com/motorwatch/motorwatch/internal/synth"
	"github.com/motorwatch/motorwatch/internal/telemetry"
)

// Config tunes the lifecycle workers.
type Config struct {
	AssetID string
	// Calibration run.
	CalibrationSamples int
	PersistEvery       int
	ReportEvery        int
	Seed               int64
	// Validation thresholds on calibrated scores.
	HealthyScoreThreshold float64
	FaultScoreThreshold   float64
	// Monitoring feed.
	WindowSize   int
	TickInterval time.Duration
	// Worker join deadline on transitions.
	JoinTimeout time.Duration
}

// DefaultConfig matches the standard demo deployment.
func DefaultConfig() Config {
	return Config{
		AssetID:               "Motor-01",
		CalibrationSamples:    1000,
		PersistEvery:          10,
		ReportEvery:           100,
		Seed:                  42,
		HealthyScoreThreshold: 0.65,
		FaultScoreThreshold:   0.5,
		WindowSize:            100,
		TickInterval:          time.Second,
		JoinTimeout:           5 * time.Second,
	}
}

// Progress reports where a calibration run is.
type Progress struct {
	Phase     string `json:"phase"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// Validation accumulates the classification counters: one outcome per
// monitoring tick, reset on stop, purge and at the start of a calibration.
type Validation struct {
	TrainingSamples int `json:"training_samples"`
	HealthyTotal    int `json:"healthy_total"`
	HealthyCorrect  int `json:"healthy_correct"`
	FaultyTotal     int `json:"faulty_total"`
	FaultyCorrect   int `json:"faulty_correct"`
}

// HealthyStability is the fraction of healthy-monitoring ticks classified
// low-risk; 1.0 before any tick.
func (v Validation) HealthyStability() float64 {
	if v.HealthyTotal == 0 {
		return 1.0
	}
	return float64(v.HealthyCorrect) / float64(v.HealthyTotal)
}

// FaultCaptureRate is the fraction of fault-injection ticks classified
// high-risk; 1.0 before any tick.
func (v Validation) FaultCaptureRate() float64 {
	if v.FaultyTotal == 0 {
		return 1.0
	}
	return float64(v.FaultyCorrect) / float64(v.FaultyTotal)
}

// Status is the controller's externally visible state.
type Status struct {
	State            domain.SystemState `json:"state"`
	ActiveFault      string             `json:"active_fault,omitempty"`
	Severity         string             `json:"severity,omitempty"`
	Calibration      Progress           `json:"calibration"`
	Validation       Validation         `json:"validation"`
	HealthyStability float64            `json:"healthy_stability"`
	FaultCaptureRate float64            `json:"fault_capture_rate"`
}

// Controller owns the system state and its single background worker.
type Controller struct {
	cfg     Config
	facade  *ingest.Facade
	states  *state.Store
	writer  store.PointWriter
	engine  *events.Engine
	metrics *telemetry.Metrics
	gen     *synth.Generator

	// baseCtx outlives any single request; workers are bound to it, not to
	// the API call that started them.
	baseCtx context.Context

	mu       sync.Mutex
	current  domain.SystemState
	progress Progress
	fault    domain.FaultKind
	severity domain.Severity
	stopCh   chan struct{}
	doneCh   chan struct{}

	// The validation counters take their own lock: the worker records an
	// outcome per tick and must not contend with a Stop holding mu while it
	// joins the worker.
	vmu        sync.Mutex
	validation Validation
}

// New builds an idle controller.
func New(cfg Config, facade *ingest.Facade, states *state.Store, writer store.PointWriter, engine *events.Engine, metrics *telemetry.Metrics) *Controller {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Controller{
		baseCtx: context.Background(),
		cfg:     cfg,
		facade:  facade,
		states:  states,
		writer:  writer,
		engine:  engine,
		metrics: metrics,
		gen:     synth.New(cfg.Seed),
		current: domain.StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() domain.SystemState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Status returns the full controller status.
func (c *Controller) Status() Status {
	c.vmu.Lock()
	v := c.validation
	c.vmu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		State:            c.current,
		Calibration:      c.progress,
		Validation:       v,
		HealthyStability: v.HealthyStability(),
		FaultCaptureRate: v.FaultCaptureRate(),
	}
	if c.current == domain.StateFaultInjection {
		s.ActiveFault = string(c.fault)
		s.Severity = string(c.severity)
	}
	return s
}

// resetValidation zeroes the classification counters.
func (c *Controller) resetValidation() {
	c.vmu.Lock()
	c.validation = Validation{}
	c.vmu.Unlock()
}

func stateGauge(s domain.SystemState) float64 {
	switch s {
	case domain.StateCalibrating:
		return 1
	case domain.StateMonitoringHealthy:
		return 2
	case domain.StateFaultInjection:
		return 3
	}
	return 0
}

// setState must be called with the lock held.
func (c *Controller) setState(to domain.SystemState) {
	from := c.current
	c.current = to
	c.metrics.SystemState.Set(stateGauge(to))
	log.Info().Str("from", string(from)).Str("to", string(to)).Msg("lifecycle transition")
}

// Calibrate starts the calibration run. Valid only from IDLE.
func (c *Controller) Calibrate(ctx context.Context) error {
	const op = "lifecycle.calibrate"
	c.mu.Lock()
	if c.current != domain.StateIdle {
		c.mu.Unlock()
		return domain.E(domain.KindInvalidTransition, op, "cannot calibrate from %s", c.current)
	}
	c.setState(domain.StateCalibrating)
	c.progress = Progress{Phase: "sampling", Total: c.cfg.CalibrationSamples}
	c.resetValidation()
	stop := make(chan struct{})
	done := make(chan struct{})
	c.stopCh, c.doneCh = stop, done
	c.mu.Unlock()

	go c.calibrationRun(c.baseCtx, stop, done)
	return nil
}

// InjectFault switches monitoring to the given fault profile. Valid only
// from MONITORING_HEALTHY.
func (c *Controller) InjectFault(ctx context.Context, kind domain.FaultKind, sev domain.Severity) error {
	const op = "lifecycle.inject_fault"
	if !kind.Valid() {
		return domain.E(domain.KindValidation, op, "unknown fault kind %q", kind)
	}
	if !sev.Valid() {
		return domain.E(domain.KindValidation, op, "unknown severity %q", sev)
	}

	c.mu.Lock()
	if c.current != domain.StateMonitoringHealthy {
		c.mu.Unlock()
		return domain.E(domain.KindInvalidTransition, op, "cannot inject fault from %s", c.current)
	}
	c.stopWorkerLocked()
	c.fault, c.severity = kind, sev
	c.setState(domain.StateFaultInjection)
	c.startWorkerLocked(true)
	c.mu.Unlock()
	return nil
}

// Reset clears an active fault and resumes healthy monitoring. Valid only
// from FAULT_INJECTION.
func (c *Controller) Reset(ctx context.Context) error {
	const op = "lifecycle.reset"
	c.mu.Lock()
	if c.current != domain.StateFaultInjection {
		c.mu.Unlock()
		return domain.E(domain.KindInvalidTransition, op, "cannot reset from %s", c.current)
	}
	c.stopWorkerLocked()
	c.fault, c.severity = "", ""
	c.setState(domain.StateMonitoringHealthy)
	c.startWorkerLocked(false)
	c.mu.Unlock()
	return nil
}

// Stop halts the monitoring worker and returns to IDLE. Rejected while
// CALIBRATING; stopping an idle controller is a no-op.
func (c *Controller) Stop() error {
	const op = "lifecycle.stop"
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == domain.StateCalibrating {
		return domain.E(domain.KindInvalidTransition, op, "cannot stop while calibration is running")
	}
	if c.current == domain.StateIdle {
		return nil
	}
	c.stopWorkerLocked()
	c.fault, c.severity = "", ""
	c.resetValidation()
	c.setState(domain.StateIdle)
	return nil
}

// Purge wipes all engine state from any state: the active worker is stopped,
// sample rings, baselines, detectors, event trackers and the durable store
// are cleared, and the controller lands in IDLE.
func (c *Controller) Purge(ctx context.Context) error {
	c.mu.Lock()
	c.stopWorkerLocked()
	c.fault, c.severity = "", ""
	c.progress = Progress{}
	c.resetValidation()
	if c.current != domain.StateIdle {
		c.setState(domain.StateIdle)
	}
	c.mu.Unlock()

	c.states.ClearAll()
	c.engine.Reset()
	if err := c.writer.DeleteAll(ctx); err != nil {
		return err
	}
	log.Info().Msg("engine state purged")
	return nil
}

// startWorkerLocked launches the monitoring feed. Caller holds the lock.
func (c *Controller) startWorkerLocked(faulty bool) {
	stop := make(chan struct{})
	done := make(chan struct{})
	c.stopCh, c.doneCh = stop, done
	kind, sev := c.fault, c.severity
	go c.monitorRun(c.baseCtx, faulty, kind, sev, stop, done)
}

// stopWorkerLocked signals the current worker and waits for it, bounded by
// JoinTimeout. Caller holds the lock.
func (c *Controller) stopWorkerLocked() {
	if c.stopCh == nil {
		return
	}
	close(c.stopCh)
	select {
	case <-c.doneCh:
	case <-time.After(c.cfg.JoinTimeout):
		log.Error().Msg("lifecycle worker did not stop within join timeout")
	}
	c.stopCh, c.doneCh = nil, nil
}

// monitorRun feeds one window of synthetic telemetry per tick. Each batch is
// scored as a whole and every sample stamped with the batch verdict; the tick
// also records one classification outcome in the validation counters.
func (c *Controller) monitorRun(ctx context.Context, faulty bool, kind domain.FaultKind, sev domain.Severity, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	threshold := c.cfg.HealthyScoreThreshold
	if faulty {
		// Lower bar during injection: bias toward recording the fault.
		threshold = c.cfg.FaultScoreThreshold
	}

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now().UTC().Add(-c.cfg.TickInterval)
			interval := c.cfg.TickInterval / time.Duration(c.cfg.WindowSize)
			var batch []domain.RawSample
			if faulty {
				batch = c.gen.Faulty(c.cfg.AssetID, kind, sev, c.cfg.WindowSize, start, interval)
			} else {
				batch = c.gen.Healthy(c.cfg.AssetID, c.cfg.WindowSize, start, interval)
			}

			score, scored := c.scoreBatch(batch)
			verdict := scored && score > threshold
			for i := range batch {
				batch[i].IsFaulty = verdict
			}

			var err error
			if scored {
				_, err = c.facade.IngestBatchLabeled(ctx, batch)
			} else {
				// No model yet: fall back to the per-sample baseline stamp.
				_, err = c.facade.IngestBatch(ctx, batch)
			}
			if err != nil {
				log.Error().Err(err).Msg("monitor feed ingest failed")
				continue
			}
			if scored {
				c.recordOutcome(faulty, score)
			}
		}
	}
}

// scoreBatch scores a generated window before it enters the pipeline:
// detector when trained, range fallback against the baseline otherwise.
func (c *Controller) scoreBatch(batch []domain.RawSample) (float64, bool) {
	if d := c.states.Detector(c.cfg.AssetID); d != nil {
		if s, err := d.ScoreWindow(batch); err == nil {
			return s, true
		}
	}
	if p := c.states.Baseline(c.cfg.AssetID); p != nil {
		return rangecheck.Score(batch[len(batch)-1], p), true
	}
	return 0, false
}

// recordOutcome adds one tick's classification to the validation counters.
func (c *Controller) recordOutcome(faulty bool, score float64) {
	c.vmu.Lock()
	defer c.vmu.Unlock()
	if faulty {
		c.validation.FaultyTotal++
		if score > c.cfg.FaultScoreThreshold {
			c.validation.FaultyCorrect++
		}
	} else {
		c.validation.HealthyTotal++
		if score < c.cfg.HealthyScoreThreshold {
			c.validation.HealthyCorrect++
		}
	}
}
