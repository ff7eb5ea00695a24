// Package metrics exposes prometheus collectors for sweeps and remediation,
// plus status summaries for the API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"activator/internal/models"
)

// Collector groups the activator's prometheus metrics. A nil *Collector is
// valid and records nothing.
type Collector struct {
	probes          *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	runs            prometheus.Counter
	runDuration     prometheus.Histogram
	statusesCurrent *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activator",
			Name:      "probes_total",
			Help:      "Status probes completed, by resulting status.",
		}, []string{"status"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activator",
			Name:      "remediation_outcomes_total",
			Help:      "Remediation outcomes, by scope (standalone or group) and kind.",
		}, []string{"scope", "kind"}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "activator",
			Name:      "remediation_runs_total",
			Help:      "Completed remediation runs.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "activator",
			Name:      "remediation_run_duration_seconds",
			Help:      "Wall time of remediation runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		statusesCurrent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "activator",
			Name:      "targets",
			Help:      "Targets per status as of the last remediation snapshot.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(c.probes, c.outcomes, c.runs, c.runDuration, c.statusesCurrent)
	}
	return c
}

// RegisterPool exposes pool occupancy as gauges.
func RegisterPool(reg prometheus.Registerer, running, queued func() int) {
	if reg == nil {
		return
	}
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "activator",
			Name:      "pool_running_tasks",
			Help:      "Tasks currently executing in the worker pool.",
		}, func() float64 { return float64(running()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "activator",
			Name:      "pool_queued_tasks",
			Help:      "Tasks waiting for a free worker.",
		}, func() float64 { return float64(queued()) }),
	)
}

// ObserveProbe counts one completed probe.
func (c *Collector) ObserveProbe(status models.Status) {
	if c == nil {
		return
	}
	c.probes.WithLabelValues(string(status)).Inc()
}

// ObserveOutcome counts one remediation outcome.
func (c *Collector) ObserveOutcome(scope string, kind models.OutcomeKind) {
	if c == nil {
		return
	}
	c.outcomes.WithLabelValues(scope, string(kind)).Inc()
}

// ObserveRun records a finished remediation run and the status mix it saw.
func (c *Collector) ObserveRun(seconds float64, summary StatusSummary) {
	if c == nil {
		return
	}
	c.runs.Inc()
	c.runDuration.Observe(seconds)
	c.statusesCurrent.WithLabelValues(string(models.StatusUp)).Set(float64(summary.Up))
	c.statusesCurrent.WithLabelValues(string(models.StatusDown)).Set(float64(summary.Down))
	c.statusesCurrent.WithLabelValues(string(models.StatusUnknown)).Set(float64(summary.Unknown))
}
