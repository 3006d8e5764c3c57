package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/motorwatch/motorwatch/internal/domain"
)

// calibrationRun executes the calibration phases: sampling -> baseline ->
// training. On success the controller enters MONITORING_HEALTHY; on failure
// or interruption it returns to IDLE.
func (c *Controller) calibrationRun(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	finish := func() {
		if done != nil {
			close(done)
			done = nil
		}
	}
	defer finish()

	end := time.Now().UTC()
	start := end.Add(-time.Hour)

	if !c.runSamplingPhase(ctx, start, end, stop) {
		finish()
		c.abortCalibration("calibration interrupted during sampling")
		return
	}
	if err := c.runBaselinePhase(ctx, start, end); err != nil {
		finish()
		c.abortCalibration(err.Error())
		return
	}

	// done is closed before taking the lock so a concurrent purge waiting on
	// the join inside the lock cannot deadlock; the stop re-check under the
	// lock then keeps an interrupted calibration from entering monitoring.
	finish()
	c.mu.Lock()
	select {
	case <-stop:
		c.mu.Unlock()
		return
	default:
	}
	c.progress.Phase = "complete"
	c.setState(domain.StateMonitoringHealthy)
	c.stopCh, c.doneCh = nil, nil
	c.startWorkerLocked(false)
	c.mu.Unlock()
}

// runSamplingPhase ingests the healthy calibration stream: every sample goes
// to the in-memory ring, every PersistEvery-th sample to the durable store.
// Returns false when interrupted.
func (c *Controller) runSamplingPhase(ctx context.Context, start, end time.Time, stop <-chan struct{}) bool {
	total := c.cfg.CalibrationSamples
	interval := end.Sub(start) / time.Duration(total)
	samples := c.gen.Healthy(c.cfg.AssetID, total, start, interval)

	var pending []domain.RawSample
	for i, s := range samples {
		select {
		case <-stop:
			return false
		case <-ctx.Done():
			return false
		default:
		}

		c.states.Append(s)
		c.metrics.SamplesIngested.WithLabelValues(s.AssetID).Inc()
		if (i+1)%c.cfg.PersistEvery == 0 {
			pending = append(pending, s)
		}
		if (i+1)%c.cfg.ReportEvery == 0 {
			c.mu.Lock()
			c.progress = Progress{Phase: "sampling", Completed: i + 1, Total: total}
			c.mu.Unlock()
			c.vmu.Lock()
			c.validation.TrainingSamples = i + 1
			c.vmu.Unlock()
			log.Info().Int("completed", i+1).Int("total", total).Msg("calibration sampling progress")
		}
	}

	c.vmu.Lock()
	c.validation.TrainingSamples = total
	c.vmu.Unlock()

	if err := c.writer.WriteBatch(ctx, pending); err != nil {
		log.Warn().Err(err).Msg("calibration samples not persisted, continuing on memory state")
	}
	return true
}

// runBaselinePhase builds the baseline (and, data permitting, the detector)
// from the sampled hour.
func (c *Controller) runBaselinePhase(ctx context.Context, start, end time.Time) error {
	c.mu.Lock()
	c.progress.Phase = "baseline"
	c.mu.Unlock()

	if _, err := c.facade.BuildBaseline(ctx, c.cfg.AssetID, start, end); err != nil {
		return err
	}

	c.mu.Lock()
	c.progress.Phase = "training"
	c.mu.Unlock()
	if c.states.Detector(c.cfg.AssetID) == nil {
		log.Info().Str("asset_id", c.cfg.AssetID).Msg("detector unavailable after calibration, range fallback active")
	}
	return nil
}

// abortCalibration drops back to IDLE with a logged reason. A purge that
// already moved the controller out of CALIBRATING wins; nothing is touched
// then.
func (c *Controller) abortCalibration(reason string) {
	c.mu.Lock()
	if c.current == domain.StateCalibrating {
		c.progress.Phase = "aborted"
		c.stopCh, c.doneCh = nil, nil
		c.setState(domain.StateIdle)
	}
	c.mu.Unlock()
	log.Error().Str("reason", reason).Msg("calibration aborted")
}
