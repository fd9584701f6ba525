// Package metrics holds the Prometheus instruments for the analysis
// pipeline, disk cache and HTTP surface.
//
// All recording methods are safe on a nil *Metrics so components can be
// built without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "branchscope"

// Pipeline outcomes.
const (
	OutcomeFresh   = "fresh"
	OutcomeUpdated = "updated"
	OutcomeFailed  = "failed"
)

// Metrics groups every instrument on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	pipelineRuns       *prometheus.CounterVec
	pipelineDuration   prometheus.Histogram
	subprocessDuration *prometheus.HistogramVec
	coalescedWaiters   prometheus.Counter
	inFlight           prometheus.Gauge
	queueDepth         prometheus.Gauge
	cacheBytes         prometheus.Gauge
	cacheEntries       prometheus.Gauge
	cacheEvictions     prometheus.Counter
	cacheRejections    prometheus.Counter
	persistRetries     prometheus.Counter
	httpRequests       *prometheus.CounterVec
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		pipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Wall time of a pipeline run.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		subprocessDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "subprocess",
			Name:      "duration_seconds",
			Help:      "Wall time of external commands by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"operation"}),
		coalescedWaiters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coalescer",
			Name:      "waiters_total",
			Help:      "Requests that joined an in-flight analysis instead of starting one.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coalescer",
			Name:      "in_flight",
			Help:      "References currently being processed.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Tasks waiting for dispatch.",
		}),
		cacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "disk_cache",
			Name:      "resident_bytes",
			Help:      "Bytes held by cached checkouts.",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "disk_cache",
			Name:      "entries",
			Help:      "Number of cached checkouts.",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "disk_cache",
			Name:      "evictions_total",
			Help:      "Checkouts removed to make room.",
		}),
		cacheRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "disk_cache",
			Name:      "rejections_total",
			Help:      "Checkouts larger than the whole cache.",
		}),
		persistRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "retries_total",
			Help:      "Retried persistence attempts.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP responses by route and status code.",
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.pipelineRuns,
		m.pipelineDuration,
		m.subprocessDuration,
		m.coalescedWaiters,
		m.inFlight,
		m.queueDepth,
		m.cacheBytes,
		m.cacheEntries,
		m.cacheEvictions,
		m.cacheRejections,
		m.persistRetries,
		m.httpRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObservePipeline records one finished pipeline run.
func (m *Metrics) ObservePipeline(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(outcome).Inc()
	m.pipelineDuration.Observe(elapsed.Seconds())
}

// ObserveSubprocess records one external command.
func (m *Metrics) ObserveSubprocess(operation string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.subprocessDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// CoalescedWaiter counts a request that joined an in-flight analysis.
func (m *Metrics) CoalescedWaiter() {
	if m == nil {
		return
	}
	m.coalescedWaiters.Inc()
}

// SetInFlight sets the number of references being processed.
func (m *Metrics) SetInFlight(n int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}

// SetQueueDepth sets the number of queued tasks.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// SetCacheUsage sets the resident bytes and entry count of the disk cache.
func (m *Metrics) SetCacheUsage(bytes uint64, entries int) {
	if m == nil {
		return
	}
	m.cacheBytes.Set(float64(bytes))
	m.cacheEntries.Set(float64(entries))
}

// CacheEviction counts one evicted checkout.
func (m *Metrics) CacheEviction() {
	if m == nil {
		return
	}
	m.cacheEvictions.Inc()
}

// CacheRejection counts one checkout too large for the cache.
func (m *Metrics) CacheRejection() {
	if m == nil {
		return
	}
	m.cacheRejections.Inc()
}

// PersistenceRetry counts one retried persistence attempt.
func (m *Metrics) PersistenceRetry() {
	if m == nil {
		return
	}
	m.persistRetries.Inc()
}

// HTTPRequest counts one HTTP response.
func (m *Metrics) HTTPRequest(route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}
