package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the orchestrator's Prometheus collectors
type Metrics struct {
	StepsDispatched   *prometheus.CounterVec
	Completions       *prometheus.CounterVec
	StaleDeliveries   prometheus.Counter
	Cancellations     prometheus.Counter
	PipelinesStarted  *prometheus.CounterVec
	ArtifactsPersists *prometheus.CounterVec
}

// New registers the orchestrator collectors on a registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StepsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "picturas_steps_dispatched_total",
			Help: "Tool invocations published, by procedure",
		}, []string{"procedure"}),
		Completions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "picturas_completions_total",
			Help: "Tool completion messages consumed, by outcome",
		}, []string{"outcome"}),
		StaleDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "picturas_stale_deliveries_total",
			Help: "Completions with no matching ledger record, dropped as duplicates",
		}),
		Cancellations: factory.NewCounter(prometheus.CounterOpts{
			Name: "picturas_cancellations_total",
			Help: "Pipelines cancelled by user request",
		}),
		PipelinesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "picturas_pipelines_started_total",
			Help: "Pipeline and preview runs started, by kind",
		}, []string{"kind"}),
		ArtifactsPersists: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "picturas_artifacts_persisted_total",
			Help: "Finalized artifacts persisted, by type",
		}, []string{"type"}),
	}
}

// Completion outcome label values
const (
	OutcomeAdvanced  = "advanced"
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)
