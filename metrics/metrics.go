// Package metrics exposes Prometheus metrics for graphs, expansions, backend
// fetches, simulation ticks and HTTP requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "ontograph"

// Collector holds all Prometheus metrics for the application. Each collector
// owns its registry, so independent instances never collide.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Graph metrics
	GraphsActive prometheus.Gauge
	NodesAdded   *prometheus.CounterVec
	NodesRemoved *prometheus.CounterVec
	LinksAdded   *prometheus.CounterVec
	LinksRemoved *prometheus.CounterVec
	Ticks        prometheus.Counter

	// Expansion metrics
	Expansions        *prometheus.CounterVec
	ExpansionDuration *prometheus.HistogramVec

	// Backend metrics
	Fetches       *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
}

// NewCollector creates a collector and registers its metrics, plus the Go
// runtime and process collectors, on a private registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		GraphsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "graphs_active",
				Help:      "Number of graph sessions currently open",
			},
		),
		NodesAdded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "nodes_added_total",
				Help:      "Total number of nodes added by expansions",
			},
			[]string{"kind"},
		),
		NodesRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "nodes_removed_total",
				Help:      "Total number of nodes removed by collapses",
			},
			[]string{"kind"},
		),
		LinksAdded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "links_added_total",
				Help:      "Total number of links added by expansions",
			},
			[]string{"kind"},
		),
		LinksRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "links_removed_total",
				Help:      "Total number of links removed by collapses",
			},
			[]string{"kind"},
		),
		Ticks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "simulation_ticks_total",
				Help:      "Total number of simulation ticks across all graphs",
			},
		),
		Expansions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "expansions_total",
				Help:      "Total number of node expansions by result",
			},
			[]string{"kind", "result"},
		),
		ExpansionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "expansion_duration_seconds",
				Help:      "Time from expansion request to commit or failure",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		Fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "backend_requests_total",
				Help:      "Total number of backend fetches",
			},
			[]string{"operation", "status"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Backend fetch duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.GraphsActive,
		c.NodesAdded,
		c.NodesRemoved,
		c.LinksAdded,
		c.LinksRemoved,
		c.Ticks,
		c.Expansions,
		c.ExpansionDuration,
		c.Fetches,
		c.FetchDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveExpansion records the outcome of an expansion.
func (c *Collector) ObserveExpansion(kind, result string, elapsed time.Duration) {
	c.Expansions.WithLabelValues(kind, result).Inc()
	c.ExpansionDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveGraphChange splits signed deltas into additions and removals.
func (c *Collector) ObserveGraphChange(kind string, nodeDelta, linkDelta int) {
	switch {
	case nodeDelta > 0:
		c.NodesAdded.WithLabelValues(kind).Add(float64(nodeDelta))
	case nodeDelta < 0:
		c.NodesRemoved.WithLabelValues(kind).Add(float64(-nodeDelta))
	}
	switch {
	case linkDelta > 0:
		c.LinksAdded.WithLabelValues(kind).Add(float64(linkDelta))
	case linkDelta < 0:
		c.LinksRemoved.WithLabelValues(kind).Add(float64(-linkDelta))
	}
}

// ObserveFetch matches backend.Observer.
func (c *Collector) ObserveFetch(operation string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Fetches.WithLabelValues(operation, status).Inc()
	c.FetchDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// GraphOpened and GraphClosed track open sessions.
func (c *Collector) GraphOpened() { c.GraphsActive.Inc() }

// GraphClosed decrements the open session gauge.
func (c *Collector) GraphClosed() { c.GraphsActive.Dec() }

// Tick counts one simulation tick.
func (c *Collector) Tick() { c.Ticks.Inc() }
