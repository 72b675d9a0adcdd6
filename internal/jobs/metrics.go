package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for compile runs and lifecycle sweeps.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	artifacts   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	probes      *prometheus.CounterVec
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

// AddArtifact counts one artifact outcome: written, unchanged or failed.
func (m *Metrics) AddArtifact(name, result string) {
	if m == nil || name == "" {
		return
	}
	m.artifacts.WithLabelValues(name, result).Inc()
}

// AddTransitions counts credential state changes, e.g. "expired" or "warned".
func (m *Metrics) AddTransitions(transition string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.transitions.WithLabelValues(transition).Add(float64(count))
}

// AddProbe counts one NAD probe by outcome.
func (m *Metrics) AddProbe(reachable bool) {
	if m == nil {
		return
	}
	result := "unreachable"
	if reachable {
		result = "reachable"
	}
	m.probes.WithLabelValues(result).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portcullis_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portcullis_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portcullis_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	artifacts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portcullis_artifacts_total",
		Help: "Compiled configuration artifacts by name and outcome.",
	}, []string{"artifact", "result"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portcullis_credential_transitions_total",
		Help: "iPSK credential lifecycle transitions.",
	}, []string{"transition"})
	probes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portcullis_nad_probes_total",
		Help: "NAD reachability probes by outcome.",
	}, []string{"result"})
	registerer.MustRegister(runs, failures, duration, artifacts, transitions, probes)
	return &Metrics{
		runs:        runs,
		failures:    failures,
		duration:    duration,
		artifacts:   artifacts,
		transitions: transitions,
		probes:      probes,
	}
}
