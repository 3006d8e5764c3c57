package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorwatch/motorwatch/internal/domain"
	"github.com/motorwatch/motorwatch/internal/events"
	"github.com/motorwatch/motorwatch/internal/ingest"
	"github.com/motorwatch/motorwatch/internal/lifecycle"
	"github.com/motorwatch/motorwatch/internal/state"
	"github.com/motorwatch/motorwatch/internal/store"
	"github.com/motorwatch/motorwatch/internal/telemetry"
)

func newTestServer(t *testing.T) (*Server, *events.Hub) {
	t.Helper()
	st := state.NewStore(1000)
	mem := store.NewMemory()
	hub := events.NewHub()
	eventLog := events.NewLog(100)
	engine := events.NewEngine(0.5, 2, eventLog, hub)
	metrics := telemetry.New()

	opts := ingest.DefaultOptions()
	opts.BaselineDir = t.TempDir()
	facade := ingest.New(opts, st, mem, engine, metrics)

	lcfg := lifecycle.DefaultConfig()
	lcfg.TickInterval = time.Hour
	lcfg.JoinTimeout = 2 * time.Second
	controller := lifecycle.New(lcfg, facade, st, mem, engine, metrics)
	t.Cleanup(func() { _ = controller.Stop() })

	cfg := Config{Addr: ":0", RateLimit: 10000, RateBurst: 20000}
	return New(cfg, facade, controller, mem, hub, eventLog, metrics), hub
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func sampleBody(ts time.Time) map[string]any {
	return map[string]any{
		"asset_id":     "Motor-01",
		"timestamp":    ts.Format(time.RFC3339Nano),
		"voltage_v":    230.0,
		"current_a":    15.0,
		"power_factor": 0.92,
		"vibration_g":  0.15,
	}
}

func TestIngestSingleSample(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, "POST", "/api/v1/data/ingest", sampleBody(time.Now().UTC()))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"accepted":1`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestIngestSampleArray(t *testing.T) {
	s, _ := newTestServer(t)
	now := time.Now().UTC()
	body := []map[string]any{sampleBody(now), sampleBody(now.Add(10 * time.Millisecond))}
	rec := doJSON(t, s, "POST", "/api/v1/data/ingest", body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"accepted":2`)
}

func TestIngestRejectsClientPower(t *testing.T) {
	s, _ := newTestServer(t)
	body := sampleBody(time.Now().UTC())
	body["power_kw"] = 3.2
	rec := doJSON(t, s, "POST", "/api/v1/data/ingest", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation")

	// Supplying the field at all is the offence, including a zero.
	body["power_kw"] = 0.0
	rec = doJSON(t, s, "POST", "/api/v1/data/ingest", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestMalformedBody(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/v1/data/ingest", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusUnknownAsset(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, "GET", "/api/v1/status/Motor-99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestStatusProvisionalBeforeBaseline(t *testing.T) {
	s, _ := newTestServer(t)
	doJSON(t, s, "POST", "/api/v1/data/ingest", sampleBody(time.Now().UTC()))

	rec := doJSON(t, s, "GET", "/api/v1/status/Motor-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report domain.HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 85, report.HealthScore)
	assert.Equal(t, domain.RiskLow, report.RiskLevel)
}

func TestBuildBaselineValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, "POST", "/api/v1/baseline/build", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing asset_id")

	rec = doJSON(t, s, "POST", "/api/v1/baseline/build", map[string]any{"asset_id": "Motor-01"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "no healthy samples yet")
}

func TestHistoryEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	now := time.Now().UTC()
	for i := 0; i < 20; i++ {
		doJSON(t, s, "POST", "/api/v1/data/ingest", sampleBody(now.Add(time.Duration(i)*10*time.Millisecond)))
	}

	rec := doJSON(t, s, "GET", "/api/v1/data/history/Motor-01?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Count   int                `json:"count"`
		Samples []domain.RawSample `json:"samples"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 5, out.Count)
	// Power is derived on ingest.
	assert.Equal(t, 3.174, out.Samples[0].PowerKW)

	rec = doJSON(t, s, "GET", "/api/v1/data/history/Motor-01?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSystemLifecycleOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, "GET", "/system/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"IDLE"`)

	// Fault injection before calibration conflicts with the state machine.
	rec = doJSON(t, s, "POST", "/system/inject-fault", map[string]any{"fault_type": "SPIKE", "severity": "SEVERE"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, s, "POST", "/system/calibrate", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Double calibrate conflicts.
	rec = doJSON(t, s, "POST", "/system/calibrate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Eventually(t, func() bool {
		st := doJSON(t, s, "GET", "/system/state", nil)
		return strings.Contains(st.Body.String(), string(domain.StateMonitoringHealthy))
	}, 30*time.Second, 100*time.Millisecond)

	rec = doJSON(t, s, "POST", "/system/inject-fault", map[string]any{"fault_type": "JITTER", "severity": "MILD"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, s, "GET", "/system/state", nil)
	assert.Contains(t, rec.Body.String(), `"JITTER"`)

	rec = doJSON(t, s, "POST", "/system/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, "POST", "/system/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, "POST", "/system/purge", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, "GET", "/api/v1/status/Motor-01", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "purge must forget the asset")
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, "GET", "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"store":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	doJSON(t, s, "POST", "/api/v1/data/ingest", sampleBody(time.Now().UTC()))

	rec := doJSON(t, s, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "motorwatch_samples_ingested_total")
}

func TestEventsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, "GET", "/api/v1/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}

func TestUnknownRoute(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, "GET", "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	st := state.NewStore(100)
	mem := store.NewMemory()
	hub := events.NewHub()
	eventLog := events.NewLog(10)
	engine := events.NewEngine(0.5, 2)
	metrics := telemetry.New()
	opts := ingest.DefaultOptions()
	opts.BaselineDir = t.TempDir()
	facade := ingest.New(opts, st, mem, engine, metrics)
	controller := lifecycle.New(lifecycle.DefaultConfig(), facade, st, mem, engine, metrics)
	s := New(Config{Addr: ":0", RateLimit: 1, RateBurst: 2}, facade, controller, mem, hub, eventLog, metrics)

	limited := false
	for i := 0; i < 5; i++ {
		rec := doJSON(t, s, "GET", "/healthz", nil)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited, "burst past the limiter must return 429")
}

func TestWebsocketStreamsEvents(t *testing.T) {
	s, hub := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ev := domain.Event{
		Timestamp: time.Now().UTC(),
		AssetID:   "Motor-01",
		Type:      domain.EventAnomalyDetected,
		Severity:  domain.SeverityWarning,
		Message:   "Anomaly detected (score: 0.61): erratic current draw",
	}
	require.NoError(t, hub.Publish(context.Background(), ev))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var got domain.Event
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, ev.AssetID, got.AssetID)
	assert.Equal(t, ev.Type, got.Type)
}

func TestRequestIDUnique(t *testing.T) {
	s, _ := newTestServer(t)
	a := doJSON(t, s, "GET", "/healthz", nil).Header().Get("X-Request-ID")
	b := doJSON(t, s, "GET", "/healthz", nil).Header().Get("X-Request-ID")
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 8)
}
