package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeError    = "error"
	OutcomeEmpty    = "empty"
	OutcomeFallback = "fallback"
	OutcomeRejected = "rejected"
)

var (
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmassist_translations_total",
			Help: "Question-to-SQL translations by outcome.",
		},
		[]string{"outcome"},
	)
	explanationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmassist_explanations_total",
			Help: "Empty-result explanations by outcome.",
		},
		[]string{"outcome"},
	)
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmassist_executions_total",
			Help: "Generated SQL executions by outcome.",
		},
		[]string{"outcome"},
	)
	completionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmassist_completion_duration_seconds",
			Help:    "Completion service latency by purpose.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"purpose"},
	)
	auditFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crmassist_audit_failures_total",
			Help: "Audit events that could not be delivered.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		translationsTotal,
		explanationsTotal,
		executionsTotal,
		completionDurationSeconds,
		auditFailuresTotal,
	)
}

func ObserveTranslation(outcome string) {
	translationsTotal.WithLabelValues(outcome).Inc()
}

func ObserveExplanation(outcome string) {
	explanationsTotal.WithLabelValues(outcome).Inc()
}

func ObserveExecution(outcome string) {
	executionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCompletion records how long one completion call took for purpose
// ("translate" or "explain").
func ObserveCompletion(purpose string, elapsed time.Duration) {
	completionDurationSeconds.WithLabelValues(purpose).Observe(elapsed.Seconds())
}

func IncrementAuditFailure() {
	auditFailuresTotal.Inc()
}
