// Package metrics exposes Prometheus collectors for batch execution.
//
// A nil *Collector is valid and records nothing, so components can take an
// optional collector without nil checks at every call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector groups the engine's metrics.
type Collector struct {
	batchesTotal     *prometheus.CounterVec
	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	runsInFlight     prometheus.Gauge
	stepsTotal       *prometheus.CounterVec
	strategyAttempts *prometheus.CounterVec
}

// NewCollector registers the collectors on reg under namespace.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		batchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Batch tasks that reached a terminal state",
			},
			[]string{"status"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "environment_runs_total",
				Help:      "Flow runs per environment by outcome",
			},
			[]string{"result", "error"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "environment_run_duration_seconds",
				Help:      "Duration of one environment's flow run",
				Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		runsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "environment_runs_in_flight",
				Help:      "Environment runs currently executing",
			},
		),
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Executed steps by kind and outcome",
			},
			[]string{"kind", "result"},
		),
		strategyAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "interaction_strategy_success_total",
				Help:      "Element interactions by the fallback strategy that succeeded",
			},
			[]string{"kind", "strategy"},
		),
	}
}

// BatchFinished counts a terminal batch.
func (c *Collector) BatchFinished(status string) {
	if c == nil {
		return
	}
	c.batchesTotal.WithLabelValues(status).Inc()
}

// RunStarted marks one environment run in flight.
func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.runsInFlight.Inc()
}

// RunFinished records one environment run.
func (c *Collector) RunFinished(success bool, errorKind string, d time.Duration) {
	if c == nil {
		return
	}
	c.runsInFlight.Dec()
	c.runsTotal.WithLabelValues(resultLabel(success), errorKind).Inc()
	c.runDuration.Observe(d.Seconds())
}

// StepExecuted records one step and, for element steps, the winning strategy.
func (c *Collector) StepExecuted(kind string, ok bool, strategy string) {
	if c == nil {
		return
	}
	c.stepsTotal.WithLabelValues(kind, resultLabel(ok)).Inc()
	if ok && strategy != "" {
		c.strategyAttempts.WithLabelValues(kind, strategy).Inc()
	}
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
