// Package metrics exposes Prometheus instrumentation for import jobs.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job outcomes used as the "result" label.
const (
	ResultComplete = "complete"
	ResultError    = "error"
	ResultCrashed  = "crashed"
)

type metrics struct {
	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobsActive  prometheus.Gauge

	rowsTotal *prometheus.CounterVec

	resolveTotal *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		jobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyingest",
			Name:      "jobs_total",
			Help:      "Total number of finished import jobs.",
		}, []string{"result"}),
		jobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "policyingest",
			Name:      "job_duration_seconds",
			Help:      "Wall time of import jobs from spawn to terminal message.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		jobsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "policyingest",
			Name:      "jobs_active",
			Help:      "Current number of running import jobs.",
		}),
		rowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyingest",
			Name:      "rows_total",
			Help:      "Total number of processed input rows.",
		}, []string{"result"}),
		resolveTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyingest",
			Name:      "resolve_total",
			Help:      "Entity resolutions by kind and outcome (found, created, refetched, upserted).",
		}, []string{"kind", "outcome"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

// JobStarted marks a job as running.
func JobStarted() {
	getMetrics().jobsActive.Inc()
}

// JobFinished records the outcome and duration of a job that was marked with JobStarted.
func JobFinished(result string, d time.Duration) {
	m := getMetrics()
	m.jobsActive.Dec()
	m.jobsTotal.WithLabelValues(result).Inc()
	m.jobDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RowsProcessed adds the per-job row tallies.
func RowsProcessed(ok, failed int) {
	m := getMetrics()
	m.rowsTotal.WithLabelValues("ok").Add(float64(ok))
	m.rowsTotal.WithLabelValues("failed").Add(float64(failed))
}

// EntityResolved counts one resolution of kind.
func EntityResolved(kind, outcome string) {
	getMetrics().resolveTotal.WithLabelValues(kind, outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
