package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/fieldservice-api/internal/models"
)

// Outcome labels shared by the workflow counters.
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// MetricsService owns the Prometheus registry. Every method is safe on a nil receiver.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	transitions     *prometheus.CounterVec
	approvals       *prometheus.CounterVec
	scores          *prometheus.CounterVec
	attendance      *prometheus.CounterVec
	locationFailed  prometheus.Counter
	lockWait        *prometheus.HistogramVec
	jobs            *prometheus.CounterVec
}

// NewMetricsService registers the HTTP and workflow collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "report_cache_lookups_total",
			Help: "Report cache lookups by result",
		}, []string{"result"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "report_cache_latency_seconds",
			Help:    "Latency for report cache reads",
			Buckets: prometheus.DefBuckets,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobcard_transitions_total",
			Help: "Job card status transitions by edge and outcome",
		}, []string{"from", "to", "outcome"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobcard_approval_decisions_total",
			Help: "Approval gate decisions by kind and outcome",
		}, []string{"decision", "outcome"}),
		scores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobcard_scores_total",
			Help: "Score assignments by outcome",
		}, []string{"outcome"}),
		attendance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_events_total",
			Help: "Day start and end events by outcome",
		}, []string{"event", "outcome"}),
		locationFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geolocation_failures_total",
			Help: "Transitions recorded without coordinates",
		}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "record_lock_wait_seconds",
			Help:    "Time spent waiting for per-record locks",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"scope"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "background_jobs_total",
			Help: "Background job attempts by queue, type and outcome",
		}, []string{"queue", "type", "outcome"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(m.requestDuration, m.requestTotal, m.cacheLookups, m.cacheLatency, m.transitions,
		m.approvals, m.scores, m.attendance, m.locationFailed, m.lockWait, m.jobs, goroutines)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a report cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordTransition counts one attempted status change.
func (m *MetricsService) RecordTransition(from, to models.JobStatus, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to), outcome).Inc()
}

// RecordApproval counts one approve or reject decision.
func (m *MetricsService) RecordApproval(decision, outcome string) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(decision, outcome).Inc()
}

// RecordScore counts one score assignment attempt.
func (m *MetricsService) RecordScore(outcome string) {
	if m == nil {
		return
	}
	m.scores.WithLabelValues(outcome).Inc()
}

// RecordAttendance counts a day start or end.
func (m *MetricsService) RecordAttendance(event, outcome string) {
	if m == nil {
		return
	}
	m.attendance.WithLabelValues(event, outcome).Inc()
}

// RecordLocationFailure counts a transition logged without coordinates.
func (m *MetricsService) RecordLocationFailure() {
	if m == nil {
		return
	}
	m.locationFailed.Inc()
}

// ObserveLockWait records how long a caller waited for a record lock.
func (m *MetricsService) ObserveLockWait(scope string, duration time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(scope).Observe(duration.Seconds())
}

// RecordJob counts one background job outcome. It matches jobs.Observer.
func (m *MetricsService) RecordJob(queue, jobType, outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(queue, jobType, outcome).Inc()
}

// outcomeOf maps an operation error to a metric outcome label.
func outcomeOf(err error) string {
	if err == nil {
		return outcomeOK
	}
	var status int
	if appErr := asAppError(err); appErr != nil {
		status = appErr.Status
	}
	if status > 0 && status < http.StatusInternalServerError {
		return outcomeRejected
	}
	return outcomeError
}
