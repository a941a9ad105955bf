package task

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeRetried   = "retried"
	outcomeFailed    = "failed"
	outcomeDuplicate = "duplicate"
	outcomeDropped   = "dropped"
)

type routerMetrics struct {
	outcomes *prometheus.CounterVec
}

// newRouterMetrics returns nil when reg is nil; a nil *routerMetrics is a no-op.
func newRouterMetrics(reg prometheus.Registerer) *routerMetrics {
	if reg == nil {
		return nil
	}
	return &routerMetrics{
		outcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "modcore_tasks_total",
			Help: "Background task attempts by type and outcome",
		}, []string{"type", "outcome"}),
	}
}

func (m *routerMetrics) outcome(taskType, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(taskType, outcome).Inc()
}
