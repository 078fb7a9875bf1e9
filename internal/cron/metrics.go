package cron

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes scheduler counters to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	runs          *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	running       *prometheus.GaugeVec
	nextFire      *prometheus.GaugeVec
	misfires      *prometheus.CounterVec
	persistErrors prometheus.Counter
	pruned        prometheus.Counter
}

// NewMetrics creates the scheduler metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailing",
			Subsystem: "cron",
			Name:      "executions_total",
			Help:      "Job executions by outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mailing",
			Subsystem: "cron",
			Name:      "execution_duration_seconds",
			Help:      "Wall time of job bodies.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"job"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mailing",
			Subsystem: "cron",
			Name:      "running",
			Help:      "Currently running instances per job.",
		}, []string{"job"}),
		nextFire: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mailing",
			Subsystem: "cron",
			Name:      "next_fire_timestamp_seconds",
			Help:      "Unix time of the next scheduled fire.",
		}, []string{"job"}),
		misfires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailing",
			Subsystem: "cron",
			Name:      "misfires_total",
			Help:      "Fire times skipped because they elapsed while the scheduler was down.",
		}, []string{"job"}),
		persistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mailing",
			Subsystem: "cron",
			Name:      "persist_errors_total",
			Help:      "Failed writes to the job store or execution log.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mailing",
			Subsystem: "cron",
			Name:      "executions_pruned_total",
			Help:      "Execution records deleted by the retention job.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.duration, m.running, m.nextFire, m.misfires, m.persistErrors, m.pruned)
	}
	return m
}

func (m *Metrics) observeStart(job string) {
	if m == nil {
		return
	}
	m.running.WithLabelValues(job).Inc()
}

func (m *Metrics) observeFinish(job string, outcome Outcome, took time.Duration) {
	if m == nil {
		return
	}
	m.running.WithLabelValues(job).Dec()
	m.runs.WithLabelValues(job, string(outcome)).Inc()
	m.duration.WithLabelValues(job).Observe(took.Seconds())
}

func (m *Metrics) observeSkip(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job, string(OutcomeSkippedOverlap)).Inc()
}

func (m *Metrics) observeMisfire(job string) {
	if m == nil {
		return
	}
	m.misfires.WithLabelValues(job).Inc()
}

func (m *Metrics) setNextFire(job string, next time.Time) {
	if m == nil {
		return
	}
	if next.IsZero() {
		m.nextFire.DeleteLabelValues(job)
		return
	}
	m.nextFire.WithLabelValues(job).Set(float64(next.Unix()))
}

func (m *Metrics) persistError() {
	if m == nil {
		return
	}
	m.persistErrors.Inc()
}

func (m *Metrics) observePruned(n int64) {
	if m == nil {
		return
	}
	m.pruned.Add(float64(n))
}
