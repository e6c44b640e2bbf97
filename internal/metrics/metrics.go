// Package metrics exposes the engine's internal counters and gauges to
// Prometheus: rule counts by kind, alerts by state, evaluation latency,
// and autoconfiguration backlog.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every collector the engine registers, so a caller can
// construct one with its own *prometheus.Registry for test isolation.
type Registry struct {
	RulesByKind        *prometheus.GaugeVec
	AlertsByState      *prometheus.GaugeVec
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationErrors   *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec
	AutoconfigBacklog  prometheus.Gauge
	AutoconfigPolls    prometheus.Counter
	CatalogMutations   *prometheus.CounterVec
}

// New registers every collector against reg and returns the bound handles.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		RulesByKind: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fty_alert_engine",
			Name:      "rules_by_kind",
			Help:      "Number of rules currently in the catalog, by kind.",
		}, []string{"kind"}),

		AlertsByState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fty_alert_engine",
			Name:      "alerts_by_state",
			Help:      "Number of tracked alerts, by state.",
		}, []string{"state"}),

		EvaluationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fty_alert_engine",
			Name:      "evaluations_total",
			Help:      "Total rule evaluations performed, by rule kind.",
		}, []string{"kind"}),

		EvaluationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fty_alert_engine",
			Name:      "evaluation_errors_total",
			Help:      "Total rule evaluation failures, by rule kind.",
		}, []string{"kind"}),

		EvaluationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fty_alert_engine",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating a single rule against one metric sample.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"kind"}),

		AutoconfigBacklog: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fty_alert_engine",
			Name:      "autoconfig_backlog",
			Help:      "1 while any tracked device is not yet fully configured, 0 otherwise.",
		}),

		AutoconfigPolls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fty_alert_engine",
			Name:      "autoconfig_polls_total",
			Help:      "Total autoconfigurator poll passes run.",
		}),

		CatalogMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fty_alert_engine",
			Name:      "catalog_mutations_total",
			Help:      "Rule catalog mutations, by operation (add, update, delete, delete_element, delete_matching, touch).",
		}, []string{"operation"}),
	}
}

// ObserveEvaluation records one rule evaluation's outcome and latency.
func (r *Registry) ObserveEvaluation(kind string, seconds float64, err error) {
	r.EvaluationsTotal.WithLabelValues(kind).Inc()
	r.EvaluationDuration.WithLabelValues(kind).Observe(seconds)
	if err != nil {
		r.EvaluationErrors.WithLabelValues(kind).Inc()
	}
}
