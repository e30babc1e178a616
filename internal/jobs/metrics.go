package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs and notification
// delivery.
type Metrics struct {
	runs          *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	notifyErrors  *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// NotificationsCreated adds count rows of the given notification type.
func (m *Metrics) NotificationsCreated(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.notifications.WithLabelValues(kind).Add(float64(count))
}

// NotificationFailed counts a fan-out that could not be persisted.
func (m *Metrics) NotificationFailed(kind string) {
	if m == nil {
		return
	}
	m.notifyErrors.WithLabelValues(kind).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ncompliance_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ncompliance_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ncompliance_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ncompliance_notifications_created_total",
		Help: "Notification rows created, by notification type.",
	}, []string{"type"})
	notifyErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ncompliance_notification_failures_total",
		Help: "Notification fan-outs that failed to persist, by notification type.",
	}, []string{"type"})
	registerer.MustRegister(runs, failures, duration, notifications, notifyErrors)
	return &Metrics{
		runs:          runs,
		failures:      failures,
		duration:      duration,
		notifications: notifications,
		notifyErrors:  notifyErrors,
	}
}
