// Package metrics exposes Prometheus collectors for panel runs and Jenkins
// requests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentdock/internal/events"
)

const namespace = "agentdock"

type Metrics struct {
	registry *prometheus.Registry

	runsStarted     *prometheus.CounterVec
	runsFinished    *prometheus.CounterVec
	runsActive      *prometheus.GaugeVec
	runDuration     *prometheus.HistogramVec
	jenkinsRequests *prometheus.CounterVec
	jenkinsLatency  *prometheus.HistogramVec
}

// New builds collectors on a private registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		runsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "started_total",
			Help:      "Processes started by a panel",
		}, []string{"panel"}),
		runsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "finished_total",
			Help:      "Processes that reached a terminal status",
		}, []string{"panel", "status"}),
		runsActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "active",
			Help:      "Processes currently running per panel",
		}, []string{"panel"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "Wall time from start to terminal status",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"panel"}),
		jenkinsRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jenkins",
			Name:      "requests_total",
			Help:      "Jenkins API requests by operation and outcome",
		}, []string{"op", "outcome"}),
		jenkinsLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jenkins",
			Name:      "request_duration_seconds",
			Help:      "Jenkins API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RunStarted(panel string) {
	m.runsStarted.WithLabelValues(panel).Inc()
	m.runsActive.WithLabelValues(panel).Inc()
}

func (m *Metrics) RunFinished(panel, status string, elapsed time.Duration) {
	m.runsFinished.WithLabelValues(panel, status).Inc()
	m.runsActive.WithLabelValues(panel).Dec()
	if elapsed > 0 {
		m.runDuration.WithLabelValues(panel).Observe(elapsed.Seconds())
	}
}

// ObserveJenkinsRequest satisfies jenkins.RequestObserver.
func (m *Metrics) ObserveJenkinsRequest(op, outcome string, elapsed time.Duration) {
	m.jenkinsRequests.WithLabelValues(op, outcome).Inc()
	m.jenkinsLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Subscribe feeds run counters from bus until the returned func is called.
func (m *Metrics) Subscribe(bus *events.Bus) func() {
	stopStarted := bus.SubscribeRunStarted(func(e events.RunStartedEvent) {
		m.RunStarted(e.PanelID)
	})
	stopFinished := bus.SubscribeRunFinished(func(e events.RunFinishedEvent) {
		m.RunFinished(e.PanelID, e.Status, e.FinishedAt.Sub(e.StartedAt))
	})
	return func() {
		stopStarted()
		stopFinished()
	}
}
