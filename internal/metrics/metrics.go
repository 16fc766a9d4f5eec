// Package metrics exports Prometheus counters/gauges/histograms for the
// evaluation kernel: NewMetrics builds the registry, NewGinMiddleware and
// NewGinHandler wire it into the HTTP layer (see DESIGN.md for grounding).
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every series this module exports. One instance per process;
// its registry is private so tests can build throwaway instances without
// colliding with prometheus's global DefaultRegisterer.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	threadsInUse  prometheus.GaugeFunc
	threadsTotal  prometheus.Gauge
	sourcesQueued prometheus.Gauge

	reduceChunkDuration *prometheus.HistogramVec
	cacheHitsTotal      *prometheus.CounterVec
}

// NewMetrics registers and returns a fresh Metrics instance.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "podflow",
			Name:      "requests_total",
			Help:      "Number of HTTP requests, by route and status code.",
		}, []string{"route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "podflow",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		threadsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "podflow",
			Name:      "scheduler_threads_total",
			Help:      "The configured N_THREADS budget (spec.md §5).",
		}),
		sourcesQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "podflow",
			Name:      "compositor_sources_queued",
			Help:      "Number of sources currently awaiting dispatch in a Compositor.Eval call.",
		}),
		reduceChunkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "podflow",
			Name:      "reduce_chunk_duration_seconds",
			Help:      "Latency of one Reducer tile absorb, by reduce method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		cacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "podflow",
			Name:      "cache_requests_total",
			Help:      "Cache lookups, partitioned by hit/miss/corrupt.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration, m.threadsTotal, m.sourcesQueued, m.reduceChunkDuration, m.cacheHitsTotal)
	return m
}

// ObserveThreadsInUse installs a GaugeFunc sampling fn (typically
// scheduler.Scheduler.ThreadsInUse) on every /metrics scrape.
func (m *Metrics) ObserveThreadsInUse(fn func() float64) {
	if m.threadsInUse != nil {
		m.registry.Unregister(m.threadsInUse)
	}
	m.threadsInUse = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "podflow",
		Name:      "scheduler_threads_in_use",
		Help:      "Threads currently reserved out of the scheduler's N_THREADS budget.",
	}, fn)
	m.registry.MustRegister(m.threadsInUse)
}

func (m *Metrics) SetThreadBudget(n int) { m.threadsTotal.Set(float64(n)) }

func (m *Metrics) SetSourcesQueued(n int) { m.sourcesQueued.Set(float64(n)) }

func (m *Metrics) ObserveReduceChunk(method string, d time.Duration) {
	m.reduceChunkDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) ObserveCacheOutcome(outcome string) {
	m.cacheHitsTotal.WithLabelValues(outcome).Inc()
}

// NewGinMiddleware records request count/duration per route. cmd/podflow's
// main wraps the route group with this before registering handlers.
func NewGinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// NewGinHandler serves m's registry in Prometheus text exposition format,
// for mounting on a separate metrics-only gin.Engine hosted on its own
// port so a scraper hitting /metrics can't be rate-limited alongside real
// traffic.
func NewGinHandler(m *Metrics) gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) { h.ServeHTTP(c.Writer, c.Request) }
}
