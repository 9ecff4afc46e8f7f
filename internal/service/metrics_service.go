package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic,
// caching and the workflow engine. A nil *MetricsService records nothing.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	cascades        *prometheus.CounterVec
	lockWait        prometheus.Histogram
	notifications   *prometheus.CounterVec
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_commands_total",
		Help: "Workflow commands by name and result code",
	}, []string{"command", "result"})

	commandDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workflow_command_duration_seconds",
		Help:    "Duration of workflow commands including cascades",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	cascades := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_cascades_total",
		Help: "Cascade step outcomes",
	}, []string{"step", "status"})

	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "workflow_lock_wait_seconds",
		Help:    "Time spent waiting for the per-order lock",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 5},
	})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_notifications_total",
		Help: "Notification deliveries by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses,
		commands, commandDuration, cascades, lockWait, notifications, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		commands:        commands,
		commandDuration: commandDuration,
		cascades:        cascades,
		lockWait:        lockWait,
		notifications:   notifications,
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

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		return
	}
	m.cacheMisses.Inc()
}

// ObserveCommand records a finished workflow command. result is "ok" or an error code.
func (m *MetricsService) ObserveCommand(command, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, result).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// ObserveCascade records one cascade outcome.
func (m *MetricsService) ObserveCascade(step, status string) {
	if m == nil {
		return
	}
	m.cascades.WithLabelValues(step, status).Inc()
}

// ObserveLockWait records how long a command waited for its order lock.
func (m *MetricsService) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

// ObserveNotification records a delivery attempt result.
func (m *MetricsService) ObserveNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}
