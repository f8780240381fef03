// Package metrics exposes run metrics to Prometheus and keeps an
// in-process summary for the final run result.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder emits optimization driver metrics. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	samples       *prometheus.CounterVec
	batches       *prometheus.CounterVec
	batchDuration prometheus.Histogram
	iterations    prometheus.Counter
	bestObjective prometheus.Gauge
	retries       prometheus.Counter

	stats *Collector
}

// NewRecorder registers all driver metrics with the provided registry. A nil
// registry keeps the metrics private to the recorder.
func NewRecorder(registry prometheus.Registerer) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	r := &Recorder{
		samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optd_samples_total",
				Help: "Total number of simulation samples by final status",
			},
			[]string{"status"},
		),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optd_batches_total",
				Help: "Total number of sample batches by terminal state",
			},
			[]string{"state"},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "optd_batch_duration_seconds",
				Help:    "Wall-clock duration of sample batches",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),
		iterations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "optd_iterations_total",
				Help: "Total number of completed strategy iterations",
			},
		),
		bestObjective: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "optd_best_objective",
				Help: "Best objective value found by the active run",
			},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "optd_sample_retries_total",
				Help: "Total number of resubmitted simulation samples",
			},
		),
		stats: NewCollector(),
	}

	registry.MustRegister(r.samples)
	registry.MustRegister(r.batches)
	registry.MustRegister(r.batchDuration)
	registry.MustRegister(r.iterations)
	registry.MustRegister(r.bestObjective)
	registry.MustRegister(r.retries)

	return r
}

// ObserveSample counts one finished sample
func (r *Recorder) ObserveSample(status string, d time.Duration) {
	if r == nil {
		return
	}
	r.samples.WithLabelValues(status).Inc()
	if d > 0 {
		r.stats.Record(SeriesSampleSeconds, d.Seconds())
	}
}

// ObserveRetry counts one resubmitted sample
func (r *Recorder) ObserveRetry() {
	if r == nil {
		return
	}
	r.retries.Inc()
}

// ObserveBatch records a batch reaching a terminal state
func (r *Recorder) ObserveBatch(state string, d time.Duration) {
	if r == nil {
		return
	}
	r.batches.WithLabelValues(state).Inc()
	r.batchDuration.Observe(d.Seconds())
	r.stats.Record(SeriesBatchSeconds, d.Seconds())
}

// ObserveIteration records the best-so-far value after an iteration
func (r *Recorder) ObserveIteration(best float64) {
	if r == nil {
		return
	}
	r.iterations.Inc()
	r.bestObjective.Set(best)
	r.stats.Record(SeriesBestObjective, best)
}

// Stats returns the in-process collector, or nil for a nil recorder
func (r *Recorder) Stats() *Collector {
	if r == nil {
		return nil
	}
	return r.stats
}
