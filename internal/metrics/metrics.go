// Package metrics exposes the service's Prometheus instrumentation. The
// collector registers on the default registry, so Default must be the only
// construction path.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "formpilot"

// Row outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeError   = "error"
)

// Collector owns every metric series the service emits.
type Collector struct {
	rowsTotal     *prometheus.CounterVec
	rowIterations prometheus.Histogram

	modelCallDuration *prometheus.HistogramVec
	modelTokensUsed   *prometheus.CounterVec

	actionsTotal *prometheus.CounterVec
	activeRuns   prometheus.Gauge
}

var (
	defaultOnce sync.Once
	defaultColl *Collector
)

// Default returns the process-wide collector, registering the series on
// first use.
func Default() *Collector {
	defaultOnce.Do(func() {
		defaultColl = newCollector()
	})
	return defaultColl
}

func newCollector() *Collector {
	c := &Collector{}

	c.rowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Form rows processed, labeled by outcome",
		},
		[]string{"outcome"},
	)

	c.rowIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "row_iterations",
			Help:      "Decision-model iterations spent per row",
			Buckets:   prometheus.LinearBuckets(1, 2, 13),
		},
	)

	c.modelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Decision-model round-trip duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.modelTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_used_total",
			Help:      "Total number of tokens consumed",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Browser actions dispatched, labeled by kind",
		},
		[]string{"kind"},
	)

	c.activeRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Automation runs currently executing",
		},
	)

	return c
}

// RecordRow records one finished row.
func (c *Collector) RecordRow(outcome string, iterations int) {
	c.rowsTotal.WithLabelValues(outcome).Inc()
	if iterations > 0 {
		c.rowIterations.Observe(float64(iterations))
	}
}

// RecordModelCall records one decision-model round trip.
func (c *Collector) RecordModelCall(provider, model string, duration time.Duration, promptTokens, completionTokens int64) {
	c.modelCallDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.modelTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.modelTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// RecordAction records one dispatched browser action.
func (c *Collector) RecordAction(kind string) {
	c.actionsTotal.WithLabelValues(kind).Inc()
}

// RunStarted marks an automation run as active.
func (c *Collector) RunStarted() {
	c.activeRuns.Inc()
}

// RunFinished marks an automation run as finished.
func (c *Collector) RunFinished() {
	c.activeRuns.Dec()
}
