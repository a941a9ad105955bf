package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the lifecycle counters. A nil *Metrics records nothing.
type Metrics struct {
	Actions            *prometheus.CounterVec
	Reversions         *prometheus.CounterVec
	RecoveredTimers    prometheus.Counter
	LostTimers         prometheus.Counter
	Escalations        *prometheus.CounterVec
	PendingReversions  prometheus.Gauge
	PersistenceFailure *prometheus.CounterVec
}

// NewMetrics registers the lifecycle metrics on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modcore_actions_total",
			Help: "Moderation requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		Reversions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modcore_reversions_total",
			Help: "Resolved scheduled reversions by final state",
		}, []string{"state"}),
		RecoveredTimers: f.NewCounter(prometheus.CounterOpts{
			Name: "modcore_reversions_recovered_total",
			Help: "Pending reversions re-armed from storage",
		}),
		LostTimers: f.NewCounter(prometheus.CounterOpts{
			Name: "modcore_reversions_lost_total",
			Help: "Pending reversions found overdue without a live timer",
		}),
		Escalations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modcore_escalations_total",
			Help: "Automatic warning escalations by kind and outcome",
		}, []string{"kind", "outcome"}),
		PendingReversions: f.NewGauge(prometheus.GaugeOpts{
			Name: "modcore_reversions_armed",
			Help: "Reversion timers currently armed in this process",
		}),
		PersistenceFailure: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modcore_persistence_failures_total",
			Help: "Storage failures after the platform effect was applied",
		}, []string{"op"}),
	}
}

func (m *Metrics) action(kind ActionKind, outcome string) {
	if m == nil {
		return
	}
	m.Actions.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) reversion(state ReversionState) {
	if m == nil {
		return
	}
	m.Reversions.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) recovered() {
	if m != nil {
		m.RecoveredTimers.Inc()
	}
}

func (m *Metrics) lost() {
	if m != nil {
		m.LostTimers.Inc()
	}
}

func (m *Metrics) escalation(kind ActionKind, outcome string) {
	if m == nil {
		return
	}
	m.Escalations.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) armed(n int) {
	if m != nil {
		m.PendingReversions.Set(float64(n))
	}
}

func (m *Metrics) persistenceFailure(op string) {
	if m == nil {
		return
	}
	m.PersistenceFailure.WithLabelValues(op).Inc()
}
