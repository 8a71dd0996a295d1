package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/academy-admin-api/internal/dto"
)

const metricsNamespace = "academy"

// mean accumulates a count and a nanosecond total for cheap averages.
type mean struct {
	n   atomic.Uint64
	sum atomic.Uint64
}

func (m *mean) add(d time.Duration) {
	m.n.Add(1)
	m.sum.Add(uint64(d))
}

func (m *mean) millis() (uint64, float64) {
	n := m.n.Load()
	if n == 0 {
		return 0, 0
	}
	return n, float64(m.sum.Load()) / float64(n) / float64(time.Millisecond)
}

// MetricsService owns a private Prometheus registry. Every method is safe on
// a nil receiver so callers never need to guard instrumentation.
type MetricsService struct {
	handler http.Handler

	httpDuration   *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpInFlight   prometheus.Gauge
	cacheLookups   *prometheus.CounterVec
	cacheLatency   prometheus.Histogram
	cacheWrites    prometheus.Histogram
	dbQueries      *prometheus.HistogramVec
	backupExports  prometheus.Counter
	backupRestores *prometheus.CounterVec
	backupResets   *prometheus.CounterVec
	allocations    *prometheus.CounterVec
	jobRuns        *prometheus.HistogramVec

	requests mean
	queries  mean
	hits     atomic.Uint64
	misses   atomic.Uint64
}

func NewMetricsService() *MetricsService {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	httpLabels := []string{"method", "path", "status"}

	return &MetricsService{
		handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "http_request_duration_seconds",
			Help: "HTTP request latency by route template.", Buckets: prometheus.DefBuckets,
		}, httpLabels),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "http_requests_total",
			Help: "HTTP requests by route template and status.",
		}, httpLabels),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "http_requests_in_flight",
			Help: "Requests currently being served.",
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "cache_lookups_total",
			Help: "Cache reads by result (hit, miss).",
		}, []string{"result"}),
		cacheLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "cache_read_seconds",
			Help: "Cache read latency.", Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		cacheWrites: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "cache_write_seconds",
			Help: "Cache write latency.", Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		dbQueries: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "db_query_duration_seconds",
			Help: "Latency of instrumented queries by label.", Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		backupExports: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "backup_exports_total",
			Help: "Snapshots exported, manual or scheduled.",
		}),
		backupRestores: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "backup_restores_total",
			Help: "Restore attempts by result (success, failure, rejected).",
		}, []string{"result"}),
		backupResets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "backup_resets_total",
			Help: "Destructive resets by scope.",
		}, []string{"scope"}),
		allocations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "registration_allocations_total",
			Help: "Registration number allocations by result (ok, retry, failed).",
		}, []string{"result"}),
		jobRuns: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "job_duration_seconds",
			Help: "Background job attempts by type and result.", Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900},
		}, []string{"type", "result"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpDuration.WithLabelValues(method, path, code).Observe(d.Seconds())
	m.httpRequests.WithLabelValues(method, path, code).Inc()
	m.requests.add(d)
}

func (m *MetricsService) TrackInFlight(delta int) {
	if m == nil {
		return
	}
	m.httpInFlight.Add(float64(delta))
}

func (m *MetricsService) RecordCacheOperation(hit bool, d time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(d.Seconds())
	if hit {
		m.hits.Add(1)
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.misses.Add(1)
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *MetricsService) ObserveCacheWrite(d time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrites.Observe(d.Seconds())
}

// ObserveDBQuery times one labelled query, e.g. dashboard_students.
func (m *MetricsService) ObserveDBQuery(label string, d time.Duration) {
	if m == nil {
		return
	}
	m.dbQueries.WithLabelValues(label).Observe(d.Seconds())
	m.queries.add(d)
}

func (m *MetricsService) RecordBackupExport() {
	if m == nil {
		return
	}
	m.backupExports.Inc()
}

func (m *MetricsService) RecordBackupRestore(result string) {
	if m == nil {
		return
	}
	m.backupRestores.WithLabelValues(result).Inc()
}

func (m *MetricsService) RecordBackupReset(scope string) {
	if m == nil {
		return
	}
	m.backupResets.WithLabelValues(scope).Inc()
}

func (m *MetricsService) RecordAllocation(result string) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(result).Inc()
}

// ObserveJob records one background job attempt.
func (m *MetricsService) ObserveJob(jobType string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobRuns.WithLabelValues(jobType, result).Observe(d.Seconds())
}

// Snapshot summarises process-lifetime counters for GET /system/metrics.
func (m *MetricsService) Snapshot() dto.SystemMetrics {
	if m == nil {
		return dto.SystemMetrics{}
	}
	hits, misses := m.hits.Load(), m.misses.Load()
	out := dto.SystemMetrics{
		CacheHits:   hits,
		CacheMisses: misses,
		Goroutines:  runtime.NumGoroutine(),
		GeneratedAt: time.Now().UTC(),
	}
	if lookups := hits + misses; lookups > 0 {
		out.CacheHitRatio = float64(hits) / float64(lookups)
	}
	out.RequestsTotal, out.AverageRequestDurationMs = m.requests.millis()
	out.DBQueryCount, out.AverageDBQueryDurationMs = m.queries.millis()
	return out
}
