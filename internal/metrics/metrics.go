package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/DeafMist/keyword-radar/internal/models"
)

const namespace = "keyword_radar"

// Metrics holds the process counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	attempts        *prometheus.CounterVec
	queries         *prometheus.CounterVec
	runs            *prometheus.CounterVec
	newKeywords     *prometheus.GaugeVec
	delayMultiplier prometheus.Gauge
}

// New creates the counters and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggest_attempts_total",
			Help:      "Suggestion endpoint requests by outcome.",
		}, []string{"outcome"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggest_queries_total",
			Help:      "Finished queries by terminal outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "root_runs_total",
			Help:      "Keyword root runs by final state.",
		}, []string{"state"}),
		newKeywords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "new_keywords",
			Help:      "New keywords found by the last run of a root.",
		}, []string{"root"}),
		delayMultiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delay_multiplier",
			Help:      "Current dynamic delay multiplier.",
		}),
	}
	reg.MustRegister(m.attempts, m.queries, m.runs, m.newKeywords, m.delayMultiplier)
	return m
}

// ObserveAttempt counts one request. outcome is "success" or a failure kind.
func (m *Metrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

// ObserveQuery counts a terminal query result.
func (m *Metrics) ObserveQuery(res models.QueryResult) {
	if m == nil {
		return
	}
	outcome := "success"
	if res.Failure != nil {
		outcome = string(res.Failure.Kind)
	}
	m.queries.WithLabelValues(outcome).Inc()
}

// ObserveRun counts a finished root run.
func (m *Metrics) ObserveRun(s models.RunSummary) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(s.State)).Inc()
	if s.Diff != nil {
		m.newKeywords.WithLabelValues(s.Root).Set(float64(s.Diff.NewCount))
	}
}

// SetDelayMultiplier publishes the pacer's current multiplier.
func (m *Metrics) SetDelayMultiplier(v float64) {
	if m == nil {
		return
	}
	m.delayMultiplier.Set(v)
}
