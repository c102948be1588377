// Package telemetry provides the process-wide metrics registry threaded
// through the pipeline: every stage that counts or times something reads
// or creates its metrics through a Registry rather than touching a
// package-level global.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry owns a prometheus.Registerer and hands out metric handles on
// demand, so callers don't have to thread raw prometheus types through
// the rest of the pipeline.
type Registry struct {
	reg prometheus.Registerer
}

// NewRegistry wraps reg. A nil reg uses prometheus.DefaultRegisterer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Registry{reg: reg}
}

// Counter registers (or reuses, if already registered) a counter vec and
// returns one handle's counter for the given label values.
func (r *Registry) Counter(name, help string, labelNames []string, labelValues ...string) prometheus.Counter {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labelNames)
	if err := r.reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			vec = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return vec.WithLabelValues(labelValues...)
}

// Histogram registers (or reuses) a histogram vec in milliseconds.
func (r *Registry) Histogram(name, help string, buckets []float64, labelNames []string, labelValues ...string) prometheus.Observer {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labelNames)
	if err := r.reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			vec = are.ExistingCollector.(*prometheus.HistogramVec)
		}
	}
	return vec.WithLabelValues(labelValues...)
}

// Gauge registers (or reuses) a gauge vec.
func (r *Registry) Gauge(name, help string, labelNames []string, labelValues ...string) prometheus.Gauge {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labelNames)
	if err := r.reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			vec = are.ExistingCollector.(*prometheus.GaugeVec)
		}
	}
	return vec.WithLabelValues(labelValues...)
}

// LatencyBucketsMillis are the default histogram buckets for the
// per-packet/per-frame latencies the media pipeline and bot runtime
// record, in milliseconds.
var LatencyBucketsMillis = []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000}
