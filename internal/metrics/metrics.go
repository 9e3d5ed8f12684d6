// Package metrics counts what the runner assembles. A nil *Collector is
// valid and records nothing.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "crawl"

// Collector holds the crawl counters on its own registry.
type Collector struct {
	registry     *prometheus.Registry
	rows         *prometheus.CounterVec
	entities     *prometheus.CounterVec
	brokenChains *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// New registers the counters on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows read from query results.",
		}, []string{"operation"}),
		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_total",
			Help:      "Top-level records produced by assembly.",
		}, []string{"operation"}),
		brokenChains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broken_chains_total",
			Help:      "Rows skipped because a level key was set without its parent key.",
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed operations by error code.",
		}, []string{"operation", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_seconds",
			Help:      "Wall time of an operation, query included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	c.registry.MustRegister(c.rows, c.entities, c.brokenChains, c.failures, c.duration)
	return c
}

// Registry exposes the registry, e.g. for an HTTP handler.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Assembled records one successful assembly.
func (c *Collector) Assembled(op string, rows, entities, brokenChains int) {
	if c == nil {
		return
	}
	c.rows.WithLabelValues(op).Add(float64(rows))
	c.entities.WithLabelValues(op).Add(float64(entities))
	if brokenChains > 0 {
		c.brokenChains.WithLabelValues(op).Add(float64(brokenChains))
	}
}

// Failed records a failed operation.
func (c *Collector) Failed(op, code string) {
	if c == nil {
		return
	}
	c.failures.WithLabelValues(op, code).Inc()
}

// Observe records how long an operation took.
func (c *Collector) Observe(op string, seconds float64) {
	if c == nil {
		return
	}
	c.duration.WithLabelValues(op).Observe(seconds)
}

// WriteText writes every metric in the Prometheus text format.
func (c *Collector) WriteText(w io.Writer) error {
	if c == nil {
		return nil
	}
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Summary returns counter totals by metric name, summed over labels.
func (c *Collector) Summary() (map[string]float64, error) {
	out := map[string]float64{}
	if c == nil {
		return out, nil
	}
	families, err := c.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		addTotals(out, mf)
	}
	return out, nil
}

func addTotals(out map[string]float64, mf *dto.MetricFamily) {
	for _, m := range mf.GetMetric() {
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			out[mf.GetName()] += m.GetCounter().GetValue()
		case dto.MetricType_HISTOGRAM:
			out[mf.GetName()+"_count"] += float64(m.GetHistogram().GetSampleCount())
		}
	}
}
