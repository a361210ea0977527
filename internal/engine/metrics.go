package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"genstudio/internal/domain"
)

// Metrics are the engine's prometheus collectors.
type Metrics struct {
	jobs        *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	batches     *prometheus.CounterVec
	inFlight    prometheus.Gauge
}

// NewMetrics builds the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genstudio",
			Subsystem: "engine",
			Name:      "jobs_total",
			Help:      "Generation jobs settled, by capability and final status.",
		}, []string{"capability", "status", "error_kind"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "genstudio",
			Subsystem: "engine",
			Name:      "job_duration_seconds",
			Help:      "Wall time of executed jobs including resolution.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"capability"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genstudio",
			Subsystem: "engine",
			Name:      "batches_total",
			Help:      "Batch runs finished, by outcome.",
		}, []string{"outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "genstudio",
			Subsystem: "engine",
			Name:      "jobs_in_flight",
			Help:      "Jobs currently executing across all batches.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.jobs, m.jobDuration, m.batches, m.inFlight)
	}
	return m
}

func (m *Metrics) jobStarted() {
	m.inFlight.Inc()
}

func (m *Metrics) jobSettled(job *domain.GenerationJob, elapsed time.Duration) {
	m.inFlight.Dec()
	m.jobDuration.WithLabelValues(string(job.Capability)).Observe(elapsed.Seconds())
	m.jobs.WithLabelValues(string(job.Capability), string(job.Status), string(job.ErrorKind)).Inc()
}

func (m *Metrics) jobSkipped(job *domain.GenerationJob) {
	m.jobs.WithLabelValues(string(job.Capability), string(job.Status), string(job.ErrorKind)).Inc()
}

func (m *Metrics) batchFinished(outcome string) {
	m.batches.WithLabelValues(outcome).Inc()
}
