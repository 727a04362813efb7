package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/guimove/hostbalance/internal/solution"
	"github.com/guimove/hostbalance/internal/strategy"
)

// Outcome labels for hostbalance_audit_runs_total.
const (
	OutcomeSuccess          = "success"
	OutcomeFailed           = "failed"
	OutcomeInvalidParameter = "invalid_parameters"
)

// Metrics are the audit run counters. A nil Registerer creates unregistered
// collectors.
type Metrics struct {
	Runs     *prometheus.CounterVec
	Actions  *prometheus.CounterVec
	Skipped  *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates and registers the audit collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hostbalance_audit_runs_total",
			Help: "Audit runs by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hostbalance_actions_total",
			Help: "Planned actions by strategy and action type.",
		}, []string{"strategy", "type"}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hostbalance_skipped_instances_total",
			Help: "Resources left out of a computation by strategy and reason.",
		}, []string{"strategy", "reason"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hostbalance_audit_duration_seconds",
			Help:    "Wall time of audit runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),
	}
}

func (m *Metrics) observe(name, outcome string, elapsed time.Duration, sol *solution.Solution, skips []strategy.Skip) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(name, outcome).Inc()
	m.Duration.WithLabelValues(name).Observe(elapsed.Seconds())
	if sol != nil {
		for t, n := range sol.CountByType() {
			m.Actions.WithLabelValues(name, string(t)).Add(float64(n))
		}
	}
	for _, s := range skips {
		m.Skipped.WithLabelValues(name, string(s.Reason)).Inc()
	}
}
