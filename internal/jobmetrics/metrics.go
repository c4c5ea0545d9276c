package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	drift     prometheus.Counter
	suspended prometheus.Counter
	renewed   prometheus.Counter
	invoiced  prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When
// the registerer is nil the default Prometheus registerer is used.
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

// AddDrift counts wallet balances found out of sync with their transaction
// sums. Reconciliation never auto-corrects, it only surfaces.
func (m *Metrics) AddDrift(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.drift.Add(float64(count))
}

// AddSuspended counts servers suspended by the expiry sweep.
func (m *Metrics) AddSuspended(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.suspended.Add(float64(count))
}

// AddRenewed counts servers auto-renewed by the expiry sweep.
func (m *Metrics) AddRenewed(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.renewed.Add(float64(count))
}

// AddInvoiced counts renewal invoices issued by the expiry sweep.
func (m *Metrics) AddInvoiced(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.invoiced.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blockhaven_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blockhaven_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blockhaven_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blockhaven_ledger_drift_total",
		Help: "Wallet balances that disagree with their transaction sums.",
	})
	suspended := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blockhaven_servers_suspended_total",
		Help: "Servers suspended by the expiry sweep.",
	})
	renewed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blockhaven_servers_auto_renewed_total",
		Help: "Servers auto-renewed by the expiry sweep.",
	})
	invoiced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blockhaven_invoices_issued_total",
		Help: "Renewal invoices issued ahead of manual renewals.",
	})
	registerer.MustRegister(runs, failures, duration, drift, suspended, renewed, invoiced)
	return &Metrics{runs: runs, failures: failures, duration: duration, drift: drift, suspended: suspended, renewed: renewed, invoiced: invoiced}
}
