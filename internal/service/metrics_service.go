package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the assignment engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	conflictBlocks  prometheus.Counter
	autoResolved    prometheus.Counter
	travelHits      prometheus.Counter
	travelMisses    prometheus.Counter
	travelFallbacks prometheus.Counter

	requestCount         uint64
	requestDurationTotal uint64
	runCount             uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schedule_run_duration_seconds",
		Help:    "Duration of assignment engine runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_runs_total",
		Help: "Total assignment engine runs by outcome",
	}, []string{"mode", "outcome"})

	conflictBlocks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_conflict_blocks_total",
		Help: "Total contested blocks identified across runs",
	})

	autoResolved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_conflicts_resolved_total",
		Help: "Total contested blocks resolved automatically",
	})

	travelHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "travel_cache_hits_total",
		Help: "Total travel estimate cache hits",
	})

	travelMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "travel_cache_misses_total",
		Help: "Total travel estimate cache misses",
	})

	travelFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "travel_estimate_fallbacks_total",
		Help: "Total travel estimates degraded to the configured default",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, runDuration, runsTotal, conflictBlocks, autoResolved, travelHits, travelMisses, travelFallbacks, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		runDuration:     runDuration,
		runsTotal:       runsTotal,
		conflictBlocks:  conflictBlocks,
		autoResolved:    autoResolved,
		travelHits:      travelHits,
		travelMisses:    travelMisses,
		travelFallbacks: travelFallbacks,
	}
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
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveRun records the outcome of one engine execution.
func (m *MetricsService) ObserveRun(mode string, success bool, duration time.Duration, conflictBlocks, autoResolved, travelFallbacks int) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.runDuration.WithLabelValues(mode).Observe(duration.Seconds())
	m.runsTotal.WithLabelValues(mode, outcome).Inc()
	m.conflictBlocks.Add(float64(conflictBlocks))
	m.autoResolved.Add(float64(autoResolved))
	m.travelFallbacks.Add(float64(travelFallbacks))
	atomic.AddUint64(&m.runCount, 1)
}

// RecordTravelCacheHit counts a travel estimate served from cache.
func (m *MetricsService) RecordTravelCacheHit() {
	if m == nil {
		return
	}
	m.travelHits.Inc()
}

// RecordTravelCacheMiss counts a travel estimate forwarded upstream.
func (m *MetricsService) RecordTravelCacheMiss() {
	if m == nil {
		return
	}
	m.travelMisses.Inc()
}
