package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records scheduled job runs and the ledger audit outcome.
type CronJobMetrics struct {
	duration     *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	inconsistent prometheus.Gauge
	stale        prometheus.Counter
}

// NewCronJobMetrics registers the cron job metrics on the provided registerer.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cron_job_duration_seconds",
		Help:    "Duration of cron jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_job_runs_total",
		Help: "Cron job executions by result.",
	}, []string{"job", "result"})
	inconsistent := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_audit_inconsistent_accounts",
		Help: "Vendor accounts whose balance disagreed with their entries on the last audit.",
	})
	stale := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_stale_operations_total",
		Help: "Pending settlement operations flagged for reconciliation.",
	})
	reg.MustRegister(duration, runs, inconsistent, stale)
	return &CronJobMetrics{
		duration:     duration,
		runs:         runs,
		inconsistent: inconsistent,
		stale:        stale,
	}
}

// ObserveDuration records the duration for the named job.
func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess counts a successful run of the named job.
func (c *CronJobMetrics) IncSuccess(job string) {
	if c == nil || c.runs == nil {
		return
	}
	c.runs.WithLabelValues(normalizeLabel(job), "success").Inc()
}

// IncFailure counts a failed run of the named job.
func (c *CronJobMetrics) IncFailure(job string) {
	if c == nil || c.runs == nil {
		return
	}
	c.runs.WithLabelValues(normalizeLabel(job), "failure").Inc()
}

// SetInconsistentAccounts publishes the result of the latest ledger audit.
func (c *CronJobMetrics) SetInconsistentAccounts(n int) {
	if c == nil || c.inconsistent == nil {
		return
	}
	c.inconsistent.Set(float64(n))
}

// AddStaleOperations counts operations moved to needs_reconciliation.
func (c *CronJobMetrics) AddStaleOperations(n int) {
	if c == nil || c.stale == nil || n <= 0 {
		return
	}
	c.stale.Add(float64(n))
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
