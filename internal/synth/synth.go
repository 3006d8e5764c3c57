// Package synth generates deterministic synthetic motor telemetry: a healthy
// Gaussian operating profile plus parameterised fault signatures. Calibration
// and fault injection run entirely on this generator.
package synth

import (
	"math/rand"
	"sync"
	"time"

	"github.com/motorwatch/motorwatch/internal/domain"
)

// Healthy operating profile for a three-phase induction motor on a 230 V
// supply. All fault signatures are expressed relative to these.
const (
	voltMean = 230.0
	voltStd  = 2.0
	currMean = 15.0
	currStd  = 1.0
	pfMean   = 0.92
	pfStd    = 0.02
	vibMean  = 0.15
	vibStd   = 0.03
)

// severityScale converts a named severity to a fault-magnitude multiplier.
func severityScale(s domain.Severity) float64 {
	switch s {
	case domain.SeverityMild:
		return 0.5
	case domain.SeveritySevere:
		return 1.5
	default:
		return 1.0
	}
}

// Generator produces samples from a seeded source. Safe for concurrent use;
// a fixed seed gives a reproducible stream.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a generator seeded with seed.
func New(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Healthy returns n healthy samples starting at start, spaced by interval.
func (g *Generator) Healthy(assetID string, n int, start time.Time, interval time.Duration) []domain.RawSample {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]domain.RawSample, n)
	for i := range out {
		out[i] = g.sample(assetID, start.Add(time.Duration(i)*interval),
			voltMean, voltStd, currMean, currStd, pfMean, pfStd, vibMean, vibStd, false)
	}
	return out
}

// Faulty returns n samples carrying the given fault signature at the given
// severity. Samples are labelled is_faulty for training bookkeeping.
func (g *Generator) Faulty(assetID string, kind domain.FaultKind, sev domain.Severity, n int, start time.Time, interval time.Duration) []domain.RawSample {
	g.mu.Lock()
	defer g.mu.Unlock()

	m := severityScale(sev)
	out := make([]domain.RawSample, n)
	for i := range out {
		ts := start.Add(time.Duration(i) * interval)
		// DRIFT ramps in across the window; other kinds apply at full
		// magnitude from the first sample.
		ramp := 1.0
		if kind == domain.FaultDrift && n > 1 {
			ramp = float64(i) / float64(n-1)
		}

		vm, vs := voltMean, voltStd
		cm, cs := currMean, currStd
		pm, ps := pfMean, pfStd
		bm, bs := vibMean, vibStd

		switch kind {
		case domain.FaultSpike:
			vm += 35 * m
			cm += 8 * m
			pm -= 0.15 * m
			bm += 0.9 * m
		case domain.FaultDrift:
			vm -= 20 * m * ramp
			cm += 5 * m * ramp
			pm -= 0.10 * m * ramp
			bm += 0.30 * m * ramp
		case domain.FaultJitter:
			vs *= 1 + 3*m
			cs *= 1 + 2*m
			ps *= 1 + 1.5*m
			bs *= 1 + 2*m
		default:
			vm += 15 * m
			bm += 0.40 * m
			vs *= 1.5
			bs *= 1.5
		}

		out[i] = g.sample(assetID, ts, vm, vs, cm, cs, pm, ps, bm, bs, true)
	}
	return out
}

func (g *Generator) sample(assetID string, ts time.Time, vm, vs, cm, cs, pm, ps, bm, bs float64, faulty bool) domain.RawSample {
	return domain.RawSample{
		AssetID:     assetID,
		AssetType:   "motor",
		Timestamp:   ts,
		VoltageV:    clampMin(vm+g.rng.NormFloat64()*vs, 0),
		CurrentA:    clampMin(cm+g.rng.NormFloat64()*cs, 0),
		PowerFactor: clamp01(pm + g.rng.NormFloat64()*ps),
		VibrationG:  clampMin(bm+g.rng.NormFloat64()*bs, 0),
		IsFaulty:    faulty,
	}
}

func clampMin(x, lo float64) float64 {
	if x < lo {
		return lo
	}
	return x
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
