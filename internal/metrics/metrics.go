// Package metrics records run statistics of the QA pipeline as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the pipeline collectors. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	outcomes     *prometheus.CounterVec
	failures     *prometheus.CounterVec
	localization *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// New creates a recorder with its own registry
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phantomqa",
			Name:      "outcomes_total",
			Help:      "Evaluated metrics by module and outcome.",
		}, []string{"module", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phantomqa",
			Name:      "unavailable_total",
			Help:      "Metrics that could not be measured, by module and failure kind.",
		}, []string{"module", "kind"}),
		localization: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phantomqa",
			Name:      "localizations_total",
			Help:      "Phantom localizations by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "phantomqa",
			Name:      "task_duration_seconds",
			Help:      "Duration of one module measuring one slice.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"module"}),
	}
	r.registry.MustRegister(r.outcomes, r.failures, r.localization, r.duration)
	return r
}

// Registry exposes the collectors for gathering or writing to a textfile
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Outcome(module, outcome string) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(module, outcome).Inc()
}

func (r *Recorder) Unavailable(module, kind string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(module, kind).Inc()
}

// Localized counts one localization attempt
func (r *Recorder) Localized(ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.localization.WithLabelValues(result).Inc()
}

// Task observes the duration of a module task
func (r *Recorder) Task(module string, d time.Duration) {
	if r == nil {
		return
	}
	r.duration.WithLabelValues(module).Observe(d.Seconds())
}
