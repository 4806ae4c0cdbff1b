package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels recomputes that published a snapshot.
	OutcomeSuccess = "success"
	// OutcomeError labels recomputes that failed to load inputs or publish.
	OutcomeError = "error"
)

const namespace = "cycle_engine"

var (
	recomputesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recomputes_total",
			Help:      "Total number of recompute passes, partitioned by outcome and strategy.",
		},
		[]string{"outcome", "strategy"},
	)

	recomputeDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recompute_seconds",
			Help:      "Recompute latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	strategyFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_fallbacks_total",
			Help:      "Adaptive predictions discarded in favour of the rule-based estimate.",
		},
		[]string{"reason"},
	)

	validationWarningsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_warnings_total",
			Help:      "History records excluded from calculation, by kind.",
		},
		[]string{"kind"},
	)

	correlationsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "correlations",
			Help:      "Number of correlations in the currently published snapshot.",
		},
	)

	redactionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redaction_failures_total",
			Help:      "Privacy projections that failed the allowlist check.",
		},
	)

	triggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Recompute triggers received, by trigger and result.",
		},
		[]string{"trigger", "result"},
	)
)

// Register attaches cycle-engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		recomputesTotal,
		recomputeDurationSeconds,
		strategyFallbacksTotal,
		validationWarningsTotal,
		correlationsGauge,
		redactionFailuresTotal,
		triggersTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRecompute records a recompute duration with its outcome and strategy labels.
func ObserveRecompute(duration time.Duration, outcome, strategy string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	if strategy == "" {
		strategy = "none"
	}
	recomputesTotal.WithLabelValues(label, strategy).Inc()
	if duration < 0 {
		duration = 0
	}
	recomputeDurationSeconds.Observe(duration.Seconds())
}

// ObserveFallback counts a discarded adaptive estimate.
func ObserveFallback(reason string) {
	strategyFallbacksTotal.WithLabelValues(reason).Inc()
}

// ObserveValidationWarning counts one excluded record.
func ObserveValidationWarning(kind string) {
	validationWarningsTotal.WithLabelValues(kind).Inc()
}

// SetCorrelations records the size of the published correlation batch.
func SetCorrelations(n int) {
	correlationsGauge.Set(float64(n))
}

// ObserveRedactionFailure counts a fail-closed privacy projection.
func ObserveRedactionFailure() {
	redactionFailuresTotal.Inc()
}

// ObserveTrigger counts a trigger and what became of it.
func ObserveTrigger(trigger, result string) {
	triggersTotal.WithLabelValues(trigger, result).Inc()
}
