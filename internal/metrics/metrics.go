// Package metrics holds the Prometheus instruments for batch conversion.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "media_converter"

// Recorder groups the counters and histograms updated by the engine and
// the orchestrator. A nil *Recorder is valid and records nothing.
type Recorder struct {
	jobs            *prometheus.CounterVec
	jobDuration     prometheus.Histogram
	cleanupFailures prometheus.Counter
	engineInit      *prometheus.CounterVec
}

// NewRecorder creates the instruments and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Conversion jobs that reached a terminal state, by status.",
			},
			[]string{"status"},
		),
		jobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Wall time spent processing one conversion job.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		cleanupFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_failures_total",
				Help:      "Engine workspace entries that could not be removed after a job.",
			},
		),
		engineInit: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_init_total",
				Help:      "Engine initialization attempts, by result.",
			},
			[]string{"result"},
		),
	}

	if reg != nil {
		reg.MustRegister(r.jobs, r.jobDuration, r.cleanupFailures, r.engineInit)
	}
	return r
}

// JobFinished counts a terminal job and observes its duration.
func (r *Recorder) JobFinished(status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.jobs.WithLabelValues(status).Inc()
	r.jobDuration.Observe(elapsed.Seconds())
}

// CleanupFailed counts one workspace entry left behind.
func (r *Recorder) CleanupFailed() {
	if r == nil {
		return
	}
	r.cleanupFailures.Inc()
}

// EngineInit counts an initialization attempt.
func (r *Recorder) EngineInit(ok bool) {
	if r == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	r.engineInit.WithLabelValues(result).Inc()
}
