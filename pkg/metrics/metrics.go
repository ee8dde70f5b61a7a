package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the harness's Prometheus collectors
type Metrics struct {
	WorkerSpawns      prometheus.Counter
	WorkerExits       *prometheus.CounterVec
	WorkerUp          prometheus.Gauge
	WorkerStartTime   prometheus.Gauge
	WorkerRSSBytes    prometheus.Gauge
	WorkerCPUPercent  prometheus.Gauge
	PreflightDuration prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the harness collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		WorkerSpawns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "botkeeper_worker_spawns_total",
				Help: "Total worker invocations started since harness start",
			},
		),
		WorkerExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botkeeper_worker_exits_total",
				Help: "Total worker exits observed, by exit reason",
			},
			[]string{"reason"},
		),
		WorkerUp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "botkeeper_worker_up",
				Help: "1 while a worker invocation is active, 0 otherwise",
			},
		),
		WorkerStartTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "botkeeper_worker_start_timestamp_seconds",
				Help: "Unix time the active worker invocation started",
			},
		),
		WorkerRSSBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "botkeeper_worker_memory_rss_bytes",
				Help: "Resident memory of the active worker process",
			},
		),
		WorkerCPUPercent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "botkeeper_worker_cpu_percent",
				Help: "CPU usage of the active worker process",
			},
		),
		PreflightDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "botkeeper_preflight_duration_seconds",
				Help: "How long the dependency preflight check took",
			},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(m.WorkerSpawns)
	m.registry.MustRegister(m.WorkerExits)
	m.registry.MustRegister(m.WorkerUp)
	m.registry.MustRegister(m.WorkerStartTime)
	m.registry.MustRegister(m.WorkerRSSBytes)
	m.registry.MustRegister(m.WorkerCPUPercent)
	m.registry.MustRegister(m.PreflightDuration)

	return m
}

// Registry exposes the underlying registry for the HTTP handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordSpawn marks a new worker invocation as active
func (m *Metrics) RecordSpawn(startTime time.Time) {
	m.WorkerSpawns.Inc()
	m.WorkerUp.Set(1)
	m.WorkerStartTime.Set(float64(startTime.Unix()))
}

// RecordExit marks the active worker invocation as finished
func (m *Metrics) RecordExit(reason string) {
	m.WorkerExits.WithLabelValues(reason).Inc()
	m.WorkerUp.Set(0)
	m.WorkerRSSBytes.Set(0)
	m.WorkerCPUPercent.Set(0)
}

// ObservePreflight records the preflight round-trip time
func (m *Metrics) ObservePreflight(d time.Duration) {
	m.PreflightDuration.Set(d.Seconds())
}
