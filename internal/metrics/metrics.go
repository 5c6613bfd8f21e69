// Package metrics exposes Prometheus collectors for jobs, stages and gateway
// health on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reelsmith/internal/queue"
	"reelsmith/internal/stage"
)

const namespace = "reelsmith"

// Metrics implements queue.Observer and pipeline.Observer.
type Metrics struct {
	registry *prometheus.Registry

	submitted     *prometheus.CounterVec
	finished      *prometheus.CounterVec
	jobDuration   prometheus.Histogram
	active        prometheus.Gauge
	stageDuration *prometheus.HistogramVec
	gatewayUp     *prometheus.GaugeVec
}

// New registers every collector plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted by the queue, by requested stage.",
		}, []string{"stage"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of jobs that ran on a worker.",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Jobs currently running on this process.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage wall time by stage and outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"stage", "outcome"}),
		gatewayUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_up",
			Help:      "1 when the last health check of a gateway passed.",
		}, []string{"gateway"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submitted,
		m.finished,
		m.jobDuration,
		m.active,
		m.stageDuration,
		m.gatewayUp,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) JobSubmitted(from stage.Stage) {
	m.submitted.WithLabelValues(string(from)).Inc()
}

func (m *Metrics) JobStarted() { m.active.Inc() }

func (m *Metrics) JobStopped() { m.active.Dec() }

func (m *Metrics) JobFinished(status queue.Status, elapsed time.Duration) {
	m.finished.WithLabelValues(string(status)).Inc()
	if elapsed > 0 {
		m.jobDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) StageFinished(st stage.Stage, outcome string, elapsed time.Duration) {
	m.stageDuration.WithLabelValues(string(st), outcome).Observe(elapsed.Seconds())
}

// ObserveHealth records the result of a gateway health check.
func (m *Metrics) ObserveHealth(h stage.Health) {
	value := 0.0
	if h.Ready {
		value = 1
	}
	m.gatewayUp.WithLabelValues(h.Name).Set(value)
}
