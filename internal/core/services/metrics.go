package services

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

// Metrics exposes Prometheus collectors for job, attempt and capture activity.
// It implements engine.Recorder.
type Metrics struct {
	jobsStarted    *prometheus.CounterVec
	jobsFinished   *prometheus.CounterVec
	jobsActive     prometheus.Gauge
	attempts       *prometheus.CounterVec
	strategies     *prometheus.CounterVec
	captures       *prometheus.CounterVec
	variantsFailed *prometheus.CounterVec
	artifactBytes  *prometheus.HistogramVec
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the instance registered with the global registry.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics registers the collectors with reg and panics on conflicts
// other than an identical collector already being present.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firewerk",
			Name:      name,
			Help:      help,
		}, labels)
	}

	m := &Metrics{
		jobsStarted:    counter("jobs_started_total", "Jobs accepted, by kind.", "kind"),
		jobsFinished:   counter("jobs_finished_total", "Jobs that reached a terminal status.", "kind", "status"),
		attempts:       counter("attempts_total", "Submit-and-capture attempts, by outcome.", "kind", "outcome"),
		strategies:     counter("strategy_results_total", "Trigger strategy executions and whether they were confirmed.", "action", "strategy", "verified"),
		captures:       counter("captures_total", "Capture mode invocations, by outcome.", "mode", "outcome"),
		variantsFailed: counter("variants_failed_total", "Variants that exhausted their retries.", "kind"),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "firewerk",
			Name:      "jobs_active",
			Help:      "Jobs currently running.",
		}),
		artifactBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "firewerk",
			Name:      "artifact_bytes",
			Help:      "Size of saved artifacts.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}, []string{"kind"}),
	}

	register := func(c prometheus.Collector) prometheus.Collector {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				return already.ExistingCollector
			}
			panic(err)
		}
		return c
	}
	m.jobsStarted = register(m.jobsStarted).(*prometheus.CounterVec)
	m.jobsFinished = register(m.jobsFinished).(*prometheus.CounterVec)
	m.attempts = register(m.attempts).(*prometheus.CounterVec)
	m.strategies = register(m.strategies).(*prometheus.CounterVec)
	m.captures = register(m.captures).(*prometheus.CounterVec)
	m.variantsFailed = register(m.variantsFailed).(*prometheus.CounterVec)
	m.jobsActive = register(m.jobsActive).(prometheus.Gauge)
	m.artifactBytes = register(m.artifactBytes).(*prometheus.HistogramVec)
	return m
}

func (m *Metrics) JobStarted(kind domain.JobKind) {
	if m == nil {
		return
	}
	m.jobsStarted.WithLabelValues(string(kind)).Inc()
	m.jobsActive.Inc()
}

func (m *Metrics) JobFinished(kind domain.JobKind, status domain.JobStatus) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(string(kind), string(status)).Inc()
	m.jobsActive.Dec()
}

func (m *Metrics) ArtifactSaved(kind domain.JobKind, size int64) {
	if m == nil {
		return
	}
	m.artifactBytes.WithLabelValues(string(kind)).Observe(float64(size))
}

func (m *Metrics) VariantFailed(kind domain.JobKind) {
	if m == nil {
		return
	}
	m.variantsFailed.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) StrategyResult(action, strategy string, verified bool) {
	if m == nil {
		return
	}
	v := "false"
	if verified {
		v = "true"
	}
	m.strategies.WithLabelValues(action, strategy, v).Inc()
}

func (m *Metrics) Attempt(kind domain.JobKind, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) Capture(mode domain.CaptureMode, outcome string) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(string(mode), outcome).Inc()
}
