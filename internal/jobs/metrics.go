package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs          *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	grantsClosed  prometheus.Counter
	staleBypasses prometheus.Gauge
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

// AddGrantsClosed counts branch grants closed by the expiry sweep.
func (m *Metrics) AddGrantsClosed(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.grantsClosed.Add(float64(count))
}

// SetStaleBypasses records how many bypass audit entries are stuck in
// the initiated state past the alerting threshold.
func (m *Metrics) SetStaleBypasses(n int) {
	if m == nil {
		return
	}
	m.staleBypasses.Set(float64(n))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmos_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmos_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pharmos_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	grantsClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pharmos_branch_grants_closed_total",
		Help: "Expired branch grants closed by the sweep job.",
	})
	staleBypasses := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pharmos_bypass_stale_initiated",
		Help: "Bypass audit entries stuck in the initiated state past the threshold.",
	})
	registerer.MustRegister(runs, failures, duration, grantsClosed, staleBypasses)
	return &Metrics{runs: runs, failures: failures, duration: duration, grantsClosed: grantsClosed, staleBypasses: staleBypasses}
}
