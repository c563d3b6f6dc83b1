// Package metrics exposes Prometheus instrumentation for the governance
// core. Registration is process-wide and idempotent.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the core's Prometheus collectors.
type Metrics struct {
	Decisions      *prometheus.CounterVec
	Revocations    prometheus.Counter
	Findings       *prometheus.CounterVec
	LedgerAppends  prometheus.Counter
	EvalDuration   prometheus.Histogram
	ActiveAgents   prometheus.Gauge
	PendingReviews prometheus.Gauge
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metrics, registering them on first use.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics(prometheus.DefaultRegisterer)
	})
	return instance
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aegis",
				Name:      "decisions_total",
				Help:      "Evaluation verdicts by decision.",
			},
			[]string{"decision"},
		),
		Revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aegis",
			Name:      "revocations_total",
			Help:      "Terminal isolation transitions.",
		}),
		Findings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aegis",
				Name:      "scanner_findings_total",
				Help:      "Pattern scanner findings by type.",
			},
			[]string{"type"},
		),
		LedgerAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aegis",
			Name:      "ledger_appends_total",
			Help:      "Entries appended to the audit ledger.",
		}),
		EvalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aegis",
			Name:      "evaluate_duration_seconds",
			Help:      "End-to-end evaluation latency.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		ActiveAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aegis",
			Name:      "active_agents",
			Help:      "Agents currently in ACTIVE status.",
		}),
		PendingReviews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aegis",
			Name:      "pending_reviews",
			Help:      "Escalations awaiting human review.",
		}),
	}

	reg.MustRegister(
		m.Decisions, m.Revocations, m.Findings,
		m.LedgerAppends, m.EvalDuration,
		m.ActiveAgents, m.PendingReviews,
	)
	return m
}
