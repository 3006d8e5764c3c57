package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorwatch/motorwatch/internal/domain"
	"github.com/motorwatch/motorwatch/internal/events"
	"github.com/motorwatch/motorwatch/internal/rangecheck"
	"github.com/motorwatch/motorwatch/internal/state"
	"github.com/motorwatch/motorwatch/internal/store"
	"github.com/motorwatch/motorwatch/internal/synth"
	"github.com/motorwatch/motorwatch/internal/telemetry"
)

var testStart = time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

func newFacade(t *testing.T) (*Facade, *state.Store, *store.Memory) {
	t.Helper()
	opts := DefaultOptions()
	opts.BaselineDir = t.TempDir()
	st := state.NewStore(1000)
	mem := store.NewMemory()
	engine := events.NewEngine(0.5, 2)
	return New(opts, st, mem, engine, telemetry.New()), st, mem
}

func healthySample(at time.Time) domain.RawSample {
	return domain.RawSample{
		AssetID: "Motor-01", Timestamp: at,
		VoltageV: 230, CurrentA: 15, PowerFactor: 0.92, VibrationG: 0.15,
	}
}

func seedHealthy(t *testing.T, f *Facade, n int) {
	t.Helper()
	g := synth.New(42)
	for _, s := range g.Healthy("Motor-01", n, testStart, 10*time.Millisecond) {
		s.IsFaulty = false
		mustIngest(t, f, s)
	}
}

func mustIngest(t *testing.T, f *Facade, s domain.RawSample) {
	t.Helper()
	_, err := f.Ingest(context.Background(), s)
	require.NoError(t, err)
}

func ingestErr(f *Facade, s domain.RawSample) error {
	_, err := f.Ingest(context.Background(), s)
	return err
}

func TestIngestComputesPower(t *testing.T) {
	f, st, mem := newFacade(t)
	mustIngest(t, f, healthySample(testStart))

	got := st.Recent("Motor-01", 1)[0]
	// 230 * 15 * 0.92 = 3174 W
	assert.Equal(t, 3.174, got.PowerKW)
	assert.Equal(t, 1, mem.Len())
}

func TestIngestRejectsClientPower(t *testing.T) {
	f, _, _ := newFacade(t)
	s := healthySample(testStart)
	s.PowerKW = 3.2
	_, err := f.Ingest(context.Background(), s)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestIngestValidation(t *testing.T) {
	f, _, _ := newFacade(t)

	s := healthySample(testStart)
	s.AssetID = ""
	assert.Equal(t, domain.KindValidation, domain.KindOf(ingestErr(f, s)))

	s = healthySample(testStart)
	s.Timestamp = time.Time{}
	assert.Equal(t, domain.KindValidation, domain.KindOf(ingestErr(f, s)))

	s = healthySample(testStart)
	s.PowerFactor = 1.2
	assert.Equal(t, domain.KindValidation, domain.KindOf(ingestErr(f, s)))

	s = healthySample(testStart)
	s.VibrationG = -0.1
	assert.Equal(t, domain.KindValidation, domain.KindOf(ingestErr(f, s)))
}

func TestIngestSurvivesStoreFailure(t *testing.T) {
	opts := DefaultOptions()
	opts.BaselineDir = t.TempDir()
	st := state.NewStore(1000)
	f := New(opts, st, failingWriter{}, events.NewEngine(0.5, 2), telemetry.New())

	mustIngest(t, f, healthySample(testStart))
	assert.Equal(t, 1, st.SampleCount("Motor-01"))
}

func TestAssessUnknownAssetNotFound(t *testing.T) {
	f, _, _ := newFacade(t)
	_, err := f.AssessCurrent(context.Background(), "Motor-99")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestAssessBeforeBaselineIsProvisional(t *testing.T) {
	f, _, _ := newFacade(t)
	mustIngest(t, f, healthySample(testStart))

	r, err := f.AssessCurrent(context.Background(), "Motor-01")
	require.NoError(t, err)
	assert.Equal(t, 85, r.HealthScore)
	assert.Equal(t, domain.RiskLow, r.RiskLevel)
	require.NotEmpty(t, r.Explanations)
	assert.Contains(t, r.Explanations[0].Reason, "Baseline not yet established")
	assert.Contains(t, r.Metadata.ModelVersion, "detector:pending")
}

func TestBuildBaselineNeedsHealthyRows(t *testing.T) {
	f, _, _ := newFacade(t)
	mustIngest(t, f, healthySample(testStart))

	_, err := f.BuildBaseline(context.Background(), "Motor-01", testStart.Add(-time.Hour), testStart.Add(time.Hour))
	require.Error(t, err)
	assert.Equal(t, domain.KindInsufficientData, domain.KindOf(err))
}

func TestBuildBaselineTrainsDetector(t *testing.T) {
	f, st, _ := newFacade(t)
	seedHealthy(t, f, 1000)

	p, err := f.BuildBaseline(context.Background(), "Motor-01", testStart.Add(-time.Hour), testStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "Motor-01", p.AssetID)
	assert.NotNil(t, st.Baseline("Motor-01"))
	require.NotNil(t, st.Detector("Motor-01"), "1000 samples give 10 windows, enough to train")
}

func TestHealthyWindowsAssessLow(t *testing.T) {
	f, _, _ := newFacade(t)
	seedHealthy(t, f, 1000)
	_, err := f.BuildBaseline(context.Background(), "Motor-01", testStart.Add(-time.Hour), testStart.Add(time.Hour))
	require.NoError(t, err)

	r, err := f.AssessCurrent(context.Background(), "Motor-01")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, r.HealthScore, 50)
}

func TestFaultyWindowsAssessWorseThanHealthy(t *testing.T) {
	f, _, _ := newFacade(t)
	seedHealthy(t, f, 1000)
	_, err := f.BuildBaseline(context.Background(), "Motor-01", testStart.Add(-time.Hour), testStart.Add(time.Hour))
	require.NoError(t, err)

	healthyScore, _, err := f.ScoreCurrent("Motor-01")
	require.NoError(t, err)

	g := synth.New(99)
	faulty := g.Faulty("Motor-01", domain.FaultSpike, domain.SeveritySevere, 200, testStart.Add(time.Minute), 10*time.Millisecond)
	for _, s := range faulty {
		s.IsFaulty = false // label is stamped server-side against the baseline
		mustIngest(t, f, s)
	}

	faultScore, _, err := f.ScoreCurrent("Motor-01")
	require.NoError(t, err)
	assert.Greater(t, faultScore, healthyScore)
	assert.Greater(t, faultScore, 0.5)
}

func TestStampFaultyAgainstBaseline(t *testing.T) {
	f, st, _ := newFacade(t)
	seedHealthy(t, f, 1000)
	_, err := f.BuildBaseline(context.Background(), "Motor-01", testStart.Add(-time.Hour), testStart.Add(time.Hour))
	require.NoError(t, err)

	out := healthySample(testStart.Add(time.Hour))
	out.VoltageV = 300 // far outside the tolerance-widened envelope
	mustIngest(t, f, out)
	got := st.Recent("Motor-01", 1)[0]
	assert.True(t, got.IsFaulty)
}

func TestEventEmittedOnSustainedFault(t *testing.T) {
	opts := DefaultOptions()
	opts.BaselineDir = t.TempDir()
	st := state.NewStore(1000)
	eventLog := events.NewLog(10)
	engine := events.NewEngine(0.5, 2, eventLog)
	f := New(opts, st, store.NewMemory(), engine, telemetry.New())

	g := synth.New(42)
	ctx := context.Background()
	for _, s := range g.Healthy("Motor-01", 1000, testStart, 10*time.Millisecond) {
		mustIngest(t, f, s)
	}
	_, err := f.BuildBaseline(ctx, "Motor-01", testStart.Add(-time.Hour), testStart.Add(time.Hour))
	require.NoError(t, err)

	// Healthy windows seed the tracker, then sustained fault flips it.
	for _, s := range g.Healthy("Motor-01", 200, testStart.Add(time.Minute), 10*time.Millisecond) {
		mustIngest(t, f, s)
	}
	faulty := g.Faulty("Motor-01", domain.FaultSpike, domain.SeveritySevere, 400, testStart.Add(2*time.Minute), 10*time.Millisecond)
	for _, s := range faulty {
		s.IsFaulty = false
		mustIngest(t, f, s)
	}

	recent := eventLog.Recent(0)
	require.NotEmpty(t, recent, "sustained fault must emit a detection event")
	assert.Equal(t, domain.EventAnomalyDetected, recent[len(recent)-1].Type)
}

func TestEventCadenceSurvivesFullRing(t *testing.T) {
	opts := DefaultOptions()
	opts.BaselineDir = t.TempDir()
	st := state.NewStore(1000) // ring capacity equals ten windows
	engine := events.NewEngine(0.5, 2)
	f := New(opts, st, store.NewMemory(), engine, telemetry.New())

	g := synth.New(42)
	ctx := context.Background()
	for _, s := range g.Healthy("Motor-01", 1000, testStart, 10*time.Millisecond) {
		mustIngest(t, f, s)
	}
	_, err := f.BuildBaseline(ctx, "Motor-01", testStart.Add(-time.Hour), testStart.Add(time.Hour))
	require.NoError(t, err)

	// The ring is full from here on; every further append evicts. Two more
	// healthy windows seed the transition tracker.
	for _, s := range g.Healthy("Motor-01", 200, testStart.Add(time.Minute), 10*time.Millisecond) {
		mustIngest(t, f, s)
	}

	faulty := g.Faulty("Motor-01", domain.FaultSpike, domain.SeveritySevere, 203, testStart.Add(2*time.Minute), 10*time.Millisecond)
	var got []domain.Event
	for i, s := range faulty {
		s.IsFaulty = false
		ev, err := f.Ingest(ctx, s)
		require.NoError(t, err)
		if ev != nil {
			got = append(got, *ev)
		}
		if i == 2 {
			require.Empty(t, got, "three samples into a window must not trigger evaluation")
		}
	}

	// Boundaries land at samples 100 and 200 of the faulty run: one contrary
	// tick each, the second crossing the debounce.
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventAnomalyDetected, got[0].Type)
	assert.Equal(t, domain.SeverityCritical, got[0].Severity)
}

func TestClientPowerRejectedEvenWhenZero(t *testing.T) {
	f, _, _ := newFacade(t)

	var withKey domain.RawSample
	require.NoError(t, json.Unmarshal([]byte(
		`{"asset_id":"Motor-01","timestamp":"2026-08-24T09:00:00Z","voltage_v":230,"current_a":15,"power_factor":0.92,"vibration_g":0.15,"power_kw":0}`,
	), &withKey))
	assert.Equal(t, domain.KindValidation, domain.KindOf(ingestErr(f, withKey)))

	var withoutKey domain.RawSample
	require.NoError(t, json.Unmarshal([]byte(
		`{"asset_id":"Motor-01","timestamp":"2026-08-24T09:00:00Z","voltage_v":230,"current_a":15,"power_factor":0.92,"vibration_g":0.15}`,
	), &withoutKey))
	mustIngest(t, f, withoutKey)
}

func TestIngestBatchLabeledKeepsVerdict(t *testing.T) {
	f, st, _ := newFacade(t)
	seedHealthy(t, f, 1000)
	_, err := f.BuildBaseline(context.Background(), "Motor-01", testStart.Add(-time.Hour), testStart.Add(time.Hour))
	require.NoError(t, err)

	// In-range samples carrying a faulty verdict: the per-sample baseline
	// stamp would flip them back, the labeled path must not.
	g := synth.New(7)
	batch := g.Healthy("Motor-01", 5, testStart.Add(time.Hour), 10*time.Millisecond)
	for i := range batch {
		batch[i].IsFaulty = true
	}
	_, err = f.IngestBatchLabeled(context.Background(), batch)
	require.NoError(t, err)

	for _, got := range st.Recent("Motor-01", 5) {
		assert.True(t, got.IsFaulty)
	}
}

func TestAssessCachesLatestReport(t *testing.T) {
	f, _, _ := newFacade(t)
	mustIngest(t, f, healthySample(testStart))
	require.Nil(t, f.LatestReport("Motor-01"))

	r, err := f.AssessCurrent(context.Background(), "Motor-01")
	require.NoError(t, err)
	cached := f.LatestReport("Motor-01")
	require.NotNil(t, cached)
	assert.Equal(t, r.HealthScore, cached.HealthScore)
	assert.Equal(t, r.RiskLevel, cached.RiskLevel)
}

func TestHistory(t *testing.T) {
	f, _, _ := newFacade(t)
	seedHealthy(t, f, 20)
	got, err := f.History(context.Background(), "Motor-01", 5)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	_, err = f.History(context.Background(), "Motor-99", 5)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestBlendPolicyMaxSelectable(t *testing.T) {
	opts := DefaultOptions()
	opts.BaselineDir = t.TempDir()
	opts.BlendPolicy = rangecheck.PolicyMax
	st := state.NewStore(1000)
	f := New(opts, st, store.NewMemory(), events.NewEngine(0.5, 2), telemetry.New())

	g := synth.New(42)
	ctx := context.Background()
	for _, s := range g.Healthy("Motor-01", 1000, testStart, 10*time.Millisecond) {
		mustIngest(t, f, s)
	}
	_, err := f.BuildBaseline(ctx, "Motor-01", testStart.Add(-time.Hour), testStart.Add(time.Hour))
	require.NoError(t, err)

	s, _, err := f.ScoreCurrent("Motor-01")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s, 0.0)
	assert.LessOrEqual(t, s, 0.98)
}

// failingWriter simulates a dead database.
type failingWriter struct{}

func (failingWriter) WritePoint(context.Context, domain.RawSample) error  { return assert.AnError }
func (failingWriter) WriteBatch(context.Context, []domain.RawSample) error { return assert.AnError }
func (failingWriter) QueryWindow(context.Context, string, time.Time, time.Time, int) ([]domain.RawSample, error) {
	return nil, assert.AnError
}
func (failingWriter) DeleteAll(context.Context) error { return assert.AnError }
func (failingWriter) Ping(context.Context) error      { return assert.AnError }

func TestAssessSurfacesTrendAndModelMetadata(t *testing.T) {
	f, st, _ := newFacade(t)
	seedHealthy(t, f, 1000)
	_, err := f.BuildBaseline(context.Background(), "Motor-01", testStart.Add(-time.Hour), testStart.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, st.Detector("Motor-01"))

	first, err := f.AssessCurrent(context.Background(), "Motor-01")
	require.NoError(t, err)
	assert.Nil(t, first.Metadata.ScoreTrend) // one score is not a trend
	require.NotNil(t, first.Metadata.ModelTrainedAt)
	assert.False(t, first.Metadata.ModelTrainedAt.IsZero())
	assert.Greater(t, first.Metadata.TrainingSamples, 0)

	second, err := f.AssessCurrent(context.Background(), "Motor-01")
	require.NoError(t, err)
	require.NotNil(t, second.Metadata.ScoreTrend)
}
