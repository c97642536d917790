package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fieldops"

// Metrics stores Prometheus collectors used by the API, the fetch pipeline
// and the import path. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	batchesFetchedTotal *prometheus.CounterVec
	batchFetchDuration  prometheus.Histogram
	fetchRetriesTotal   prometheus.Counter
	ordersProcessed     prometheus.Counter
	pipelineRunsTotal   *prometheus.CounterVec
	pipelineActive      prometheus.Gauge
	importOrdersTotal   *prometheus.CounterVec
	cacheLookupsTotal   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		batchesFetchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_fetched_total",
				Help:      "Order search batches by outcome.",
			},
			[]string{"outcome"},
		),
		batchFetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_fetch_duration_seconds",
				Help:      "Time to fetch one batch including retries.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		fetchRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_retries_total",
				Help:      "Batch fetch retries scheduled after a failed attempt.",
			},
		),
		ordersProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_processed_total",
				Help:      "Raw orders normalized by the fetch pipeline.",
			},
		),
		pipelineRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Fetch pipeline runs by terminal outcome.",
			},
			[]string{"outcome"},
		),
		pipelineActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pipeline_active",
				Help:      "Fetch pipeline goroutines currently running.",
			},
		),
		importOrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_orders_total",
				Help:      "Orders handled by the importer grouped by result.",
			},
			[]string{"result"},
		),
		cacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Query cache lookups grouped by query and result.",
			},
			[]string{"query", "result"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.batchesFetchedTotal,
		m.batchFetchDuration,
		m.fetchRetriesTotal,
		m.ordersProcessed,
		m.pipelineRunsTotal,
		m.pipelineActive,
		m.importOrdersTotal,
		m.cacheLookupsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

// ObserveBatch records one finished batch fetch.
func (m *Metrics) ObserveBatch(err error, duration time.Duration) {
	if m == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	m.batchesFetchedTotal.WithLabelValues(outcome).Inc()
	m.batchFetchDuration.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) IncFetchRetry() {
	if m == nil {
		return
	}
	m.fetchRetriesTotal.Inc()
}

func (m *Metrics) AddOrdersProcessed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ordersProcessed.Add(float64(n))
}

func (m *Metrics) IncPipelineRun(outcome string) {
	if m == nil {
		return
	}
	m.pipelineRunsTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncPipelineActive() {
	if m == nil {
		return
	}
	m.pipelineActive.Inc()
}

func (m *Metrics) DecPipelineActive() {
	if m == nil {
		return
	}
	m.pipelineActive.Dec()
}

// ObserveImport adds the counts of one import call.
func (m *Metrics) ObserveImport(imported, duplicates, errors int) {
	if m == nil {
		return
	}
	m.importOrdersTotal.WithLabelValues("imported").Add(float64(imported))
	m.importOrdersTotal.WithLabelValues("duplicate").Add(float64(duplicates))
	m.importOrdersTotal.WithLabelValues("error").Add(float64(errors))
}

func (m *Metrics) ObserveCacheLookup(query string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(normalizeLabel(query), result).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(nonNegativeSeconds(duration))
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

func nonNegativeSeconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}
