// Package metrics exposes Prometheus counters for fetches, retries,
// circuit breaker transitions, and per-run page totals. All methods are
// nil-safe so callers can run without a collector wired in.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the engine's Prometheus metrics on a private registry.
type Collector struct {
	fetchesTotal  *prometheus.CounterVec
	fetchFailures *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchBytes    *prometheus.CounterVec

	retriesTotal *prometheus.CounterVec

	breakerState   *prometheus.GaugeVec
	breakerTripped *prometheus.CounterVec

	pagesScraped   *prometheus.CounterVec
	itemsExtracted *prometheus.CounterVec
	itemsDropped   *prometheus.CounterVec

	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	statusCodes *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewCollector builds a collector backed by a fresh private registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,

		fetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ariadne_fetches_total",
				Help: "Total page fetches attempted",
			},
			[]string{"domain", "fetcher"},
		),

		fetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ariadne_fetch_failures_total",
				Help: "Total failed fetches by error kind",
			},
			[]string{"domain", "kind"},
		),

		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ariadne_fetch_duration_seconds",
				Help:    "Duration of page fetches in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"domain"},
		),

		fetchBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ariadne_fetch_bytes_total",
				Help: "Total HTML bytes fetched",
			},
			[]string{"domain"},
		),

		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ariadne_retries_total",
				Help: "Total retry attempts",
			},
			[]string{"domain"},
		),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ariadne_circuit_breaker_state",
				Help: "Current circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"domain"},
		),

		breakerTripped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ariadne_circuit_breaker_trips_total",
				Help: "Total times the circuit breaker opened",
			},
			[]string{"domain"},
		),

		pagesScraped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ariadne_pages_scraped_total",
				Help: "Total pages fetched and extracted",
			},
			[]string{"domain"},
		),

		itemsExtracted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ariadne_items_extracted_total",
				Help: "Total records extracted",
			},
			[]string{"domain"},
		),

		itemsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ariadne_items_dropped_total",
				Help: "Total records dropped for missing required fields",
			},
			[]string{"domain"},
		),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ariadne_runs_total",
				Help: "Total runs by final status",
			},
			[]string{"status"},
		),

		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ariadne_run_duration_seconds",
				Help:    "End-to-end run duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),

		statusCodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ariadne_http_status_total",
				Help: "Total HTTP responses by status code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		c.fetchesTotal,
		c.fetchFailures,
		c.fetchDuration,
		c.fetchBytes,
		c.retriesTotal,
		c.breakerState,
		c.breakerTripped,
		c.pagesScraped,
		c.itemsExtracted,
		c.itemsDropped,
		c.runsTotal,
		c.runDuration,
		c.statusCodes,
	)

	return c
}

// RecordFetch records one fetch attempt and its outcome.
func (c *Collector) RecordFetch(domain, fetcher string, statusCode int, bytes int, duration time.Duration) {
	if c == nil {
		return
	}
	c.fetchesTotal.WithLabelValues(domain, fetcher).Inc()
	c.fetchDuration.WithLabelValues(domain).Observe(duration.Seconds())
	c.fetchBytes.WithLabelValues(domain).Add(float64(bytes))
	if statusCode > 0 {
		c.statusCodes.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	}
}

// RecordFetchFailure records a fetch that failed after all retries.
func (c *Collector) RecordFetchFailure(domain, kind string) {
	if c == nil {
		return
	}
	c.fetchFailures.WithLabelValues(domain, kind).Inc()
}

// RecordRetry records one retry attempt.
func (c *Collector) RecordRetry(domain string) {
	if c == nil {
		return
	}
	c.retriesTotal.WithLabelValues(domain).Inc()
}

// SetBreakerState mirrors the circuit breaker's state as a gauge.
func (c *Collector) SetBreakerState(domain string, state int) {
	if c == nil {
		return
	}
	c.breakerState.WithLabelValues(domain).Set(float64(state))
	if state == 1 {
		c.breakerTripped.WithLabelValues(domain).Inc()
	}
}

// RecordPage records a completed page with its extraction counts.
func (c *Collector) RecordPage(domain string, extracted, dropped int) {
	if c == nil {
		return
	}
	c.pagesScraped.WithLabelValues(domain).Inc()
	c.itemsExtracted.WithLabelValues(domain).Add(float64(extracted))
	c.itemsDropped.WithLabelValues(domain).Add(float64(dropped))
}

// RecordRun records a finished run with its terminal status.
func (c *Collector) RecordRun(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// Handler serves this collector's registry over HTTP.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
