// Package telemetry exposes the engine's Prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics is the registry of engine metrics. One instance per process, with
// its own Prometheus registry so tests can read back values in isolation.
type Metrics struct {
	registry *prometheus.Registry

	SamplesIngested  *prometheus.CounterVec
	IngestRejected   *prometheus.CounterVec
	WindowsScored    *prometheus.CounterVec
	AnomalyScore     *prometheus.GaugeVec
	HealthScore      *prometheus.GaugeVec
	EventsEmitted    *prometheus.CounterVec
	StoreWrites      *prometheus.CounterVec
	StoreWriteErrors prometheus.Counter
	SystemState      prometheus.Gauge
	ScoreDuration    prometheus.Histogram
}

// New builds and registers the full metric set.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SamplesIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "motorwatch_samples_ingested_total",
				Help: "Total samples accepted by the ingest facade",
			},
			[]string{"asset_id"},
		),
		IngestRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "motorwatch_ingest_rejected_total",
				Help: "Total samples rejected at validation, by reason",
			},
			[]string{"reason"},
		),
		WindowsScored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "motorwatch_windows_scored_total",
				Help: "Total windows scored, by scoring path",
			},
			[]string{"path"},
		),
		AnomalyScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "motorwatch_anomaly_score",
				Help: "Latest anomaly score per asset (0.0 to 1.0)",
			},
			[]string{"asset_id"},
		),
		HealthScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "motorwatch_health_score",
				Help: "Latest health score per asset (0 to 100)",
			},
			[]string{"asset_id"},
		),
		EventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "motorwatch_events_emitted_total",
				Help: "Total condition events emitted, by type",
			},
			[]string{"type"},
		),
		StoreWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "motorwatch_store_writes_total",
				Help: "Total durable store writes, by outcome",
			},
			[]string{"outcome"},
		),
		StoreWriteErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "motorwatch_store_write_errors_total",
				Help: "Total durable store write failures",
			},
		),
		SystemState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "motorwatch_system_state",
				Help: "Lifecycle state (0=idle, 1=calibrating, 2=monitoring_healthy, 3=fault_injection)",
			},
		),
		ScoreDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "motorwatch_score_duration_seconds",
				Help:    "Window scoring latency in seconds",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
		),
	}

	m.registry.MustRegister(
		m.SamplesIngested,
		m.IngestRejected,
		m.WindowsScored,
		m.AnomalyScore,
		m.HealthScore,
		m.EventsEmitted,
		m.StoreWrites,
		m.StoreWriteErrors,
		m.SystemState,
		m.ScoreDuration,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CounterValue reads a labelled counter back out, for tests and the status
// endpoint.
func CounterValue(vec *prometheus.CounterVec, labels ...string) float64 {
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	var out dto.Metric
	if err := c.Write(&out); err != nil {
		return 0
	}
	return out.GetCounter().GetValue()
}

// GaugeValue reads a labelled gauge back out.
func GaugeValue(vec *prometheus.GaugeVec, labels ...string) float64 {
	g, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	var out dto.Metric
	if err := g.Write(&out); err != nil {
		return 0
	}
	return out.GetGauge().GetValue()
}
