package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "crm_escalation"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	emitted       *prometheus.CounterVec
	sweepErrors   *prometheus.CounterVec
	pushResults   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_total",
			Help:      "Escalation cycles by outcome.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of completed escalation cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_emitted_total",
			Help:      "Escalation notifications emitted per sweep.",
		}, []string{"sweep"}),
		sweepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sweep_errors_total",
			Help:      "Errors raised inside a sweep.",
		}, []string{"sweep"}),
		pushResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "push_dispatch_total",
			Help:      "Per-user push dispatches by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.cycles, m.cycleDuration, m.emitted, m.sweepErrors, m.pushResults)
	}
	return m
}

func (m *Metrics) cycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	if result == "ok" {
		m.cycleDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) emittedBy(sweep string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.emitted.WithLabelValues(sweep).Add(float64(n))
}

func (m *Metrics) sweepError(sweep string) {
	if m == nil {
		return
	}
	m.sweepErrors.WithLabelValues(sweep).Inc()
}

func (m *Metrics) pushResult(result string) {
	if m == nil {
		return
	}
	m.pushResults.WithLabelValues(result).Inc()
}
