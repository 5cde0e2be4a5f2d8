package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bazaar"

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

// CronJobMetrics is keyed by job name. A nil or unregistered value drops
// every observation.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	success     *prometheus.CounterVec
	failure     *prometheus.CounterVec
	affected    *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cron_job_duration_seconds",
			Help:      "Cron job run time.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 30, 120, 600},
		}, []string{"job"}),
		success:  counterVec("cron_job_success_total", "Cron job runs that succeeded.", "job"),
		failure:  counterVec("cron_job_failure_total", "Cron job runs that failed.", "job"),
		affected: counterVec("cron_job_rows_affected_total", "Rows deleted or updated by cron jobs.", "job"),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cron_job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per job.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.duration, m.success, m.failure, m.affected, m.lastSuccess)
	return m
}

func (c *CronJobMetrics) enabled() bool { return c != nil && c.success != nil }

func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c.enabled() {
		c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
	}
}

func (c *CronJobMetrics) IncSuccess(job string) {
	if c.enabled() {
		label := normalizeLabel(job)
		c.success.WithLabelValues(label).Inc()
		c.lastSuccess.WithLabelValues(label).SetToCurrentTime()
	}
}

func (c *CronJobMetrics) IncFailure(job string) {
	if c.enabled() {
		c.failure.WithLabelValues(normalizeLabel(job)).Inc()
	}
}

func (c *CronJobMetrics) AddAffected(job string, rows int64) {
	if c.enabled() && rows > 0 {
		c.affected.WithLabelValues(normalizeLabel(job)).Add(float64(rows))
	}
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
