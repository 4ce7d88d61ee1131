package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	imported *prometheus.CounterVec
	success  *prometheus.GaugeVec
	rate     prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against registerer, or the default
// Prometheus registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker instruments a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts a tracker for job.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records duration and the run outcome, returning err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	} else {
		t.metrics.success.WithLabelValues(t.job).SetToCurrentTime()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddImportedRows counts rows handled by an import commit. outcome is
// "created" or "skipped".
func (m *Metrics) AddImportedRows(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.imported.WithLabelValues(outcome).Add(float64(count))
}

// SetComplianceRate publishes the rate of the latest snapshot.
func (m *Metrics) SetComplianceRate(rate float64) {
	if m == nil {
		return
	}
	m.rate.Set(rate)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "habilita_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "habilita_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "habilita_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	imported := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "habilita_import_rows_total",
		Help: "Indicator result rows processed by import commits.",
	}, []string{"outcome"})
	success := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "habilita_job_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run per job.",
	}, []string{"job"})
	rate := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "habilita_compliance_rate_percent",
		Help: "Compliance rate captured by the latest snapshot.",
	})
	registerer.MustRegister(runs, failures, duration, imported, success, rate)
	return &Metrics{runs: runs, failures: failures, duration: duration, imported: imported, success: success, rate: rate}
}
