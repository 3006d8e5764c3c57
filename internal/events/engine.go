// Package events derives transition events from the anomaly score stream and
// fans them out to subscribers (websocket hub, Redis channel, in-memory log).
package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/motorwatch/motorwatch/internal/domain"
	"github.com/motorwatch/motorwatch/internal/features"
)

// DefaultDebounceTicks is how many consecutive contrary observations are
// required before the per-asset condition flips.
const DefaultDebounceTicks = 2

// Sink receives every emitted event. Implementations must be safe for
// concurrent use.
type Sink interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// assetTracker is the per-asset debounce state.
type assetTracker struct {
	seeded    bool
	anomalous bool
	contrary  int
}

// Engine converts score observations into ANOMALY_DETECTED / ANOMALY_CLEARED
// transitions. Events for one asset strictly alternate; the first observation
// seeds state without emitting.
type Engine struct {
	mu        sync.Mutex
	threshold float64
	debounce  int
	trackers  map[string]*assetTracker
	sinks     []Sink
}

// NewEngine builds an engine flipping at the given score threshold after
// debounce consecutive contrary ticks.
func NewEngine(threshold float64, debounce int, sinks ...Sink) *Engine {
	if debounce < 1 {
		debounce = DefaultDebounceTicks
	}
	return &Engine{
		threshold: threshold,
		debounce:  debounce,
		trackers:  make(map[string]*assetTracker),
		sinks:     sinks,
	}
}

// Observe feeds one scored window into the engine. vec may be nil when the
// score came from the range fallback. Returns the emitted event, or nil when
// the observation did not complete a transition.
func (e *Engine) Observe(ctx context.Context, assetID string, score float64, vec features.Vector) *domain.Event {
	isAnomalous := score > e.threshold

	e.mu.Lock()
	tr, ok := e.trackers[assetID]
	if !ok {
		// First observation seeds the tracker; transitions need a prior state.
		e.trackers[assetID] = &assetTracker{seeded: true, anomalous: isAnomalous}
		e.mu.Unlock()
		return nil
	}
	if isAnomalous == tr.anomalous {
		tr.contrary = 0
		e.mu.Unlock()
		return nil
	}
	tr.contrary++
	if tr.contrary < e.debounce {
		e.mu.Unlock()
		return nil
	}
	tr.anomalous = isAnomalous
	tr.contrary = 0
	e.mu.Unlock()

	ev := e.buildEvent(assetID, isAnomalous, score, vec)
	e.emit(ctx, ev)
	return &ev
}

// Reset drops all per-asset tracking state.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.trackers = make(map[string]*assetTracker)
	e.mu.Unlock()
}

func (e *Engine) buildEvent(assetID string, anomalous bool, score float64, vec features.Vector) domain.Event {
	ev := domain.Event{
		Timestamp: time.Now().UTC(),
		AssetID:   assetID,
	}
	if anomalous {
		ev.Type = domain.EventAnomalyDetected
		ev.Severity = domain.SeverityCritical
		ev.Message = detectionMessage(score, vec)
	} else {
		ev.Type = domain.EventAnomalyCleared
		ev.Severity = domain.SeverityInfo
		ev.Message = fmt.Sprintf("Asset returned to normal operation (score: %.2f)", score)
	}
	return ev
}

func (e *Engine) emit(ctx context.Context, ev domain.Event) {
	for _, s := range e.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Str("asset_id", ev.AssetID).Str("type", ev.Type).
				Msg("event sink publish failed")
		}
	}
}

// detection phrase thresholds, on feature-vector values.
const (
	vibStdLimit  = 0.06
	vibP2PLimit  = 0.25
	vibMeanLimit = 0.30
	voltStdLimit = 5.0
	voltP2PLimit = 15.0
	currStdLimit = 3.0
	currMeanHigh = 20.0
	pfStdLimit   = 0.04
)

// maxPhrases caps the detection message detail.
const maxPhrases = 4

// detectionMessage names the dominant patterns in the scored window. Without
// a feature vector (range-fallback path) it reports the score alone.
func detectionMessage(score float64, vec features.Vector) string {
	prefix := fmt.Sprintf("Anomaly detected (score: %.2f)", score)
	if vec == nil {
		return prefix + ": readings outside baseline operating range"
	}

	var phrases []string
	add := func(cond bool, phrase string) {
		if cond && len(phrases) < maxPhrases {
			phrases = append(phrases, phrase)
		}
	}
	add(vec["vibration_g_std"] > vibStdLimit, "elevated vibration variability")
	add(vec["vibration_g_peak_to_peak"] > vibP2PLimit, "large vibration swings")
	add(vec["vibration_g_mean"] > vibMeanLimit, "sustained high vibration")
	add(vec["voltage_v_std"] > voltStdLimit, "unstable supply voltage")
	add(vec["voltage_v_peak_to_peak"] > voltP2PLimit, "wide voltage excursions")
	add(vec["current_a_std"] > currStdLimit, "erratic current draw")
	add(vec["current_a_mean"] > currMeanHigh, "sustained overcurrent")
	add(vec["power_factor_std"] > pfStdLimit, "power factor instability")

	if len(phrases) == 0 {
		return prefix + ": anomalous multivariate pattern"
	}
	return prefix + ": " + strings.Join(phrases, "; ")
}
