package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the API and the worker.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	salesTotal       *prometheus.CounterVec
	saleValue        prometheus.Histogram
	stockAdjustments *prometheus.CounterVec
	jobsTotal        *prometheus.CounterVec
}

// NewMetrics initialises the registry and every collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atelier_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	sales := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_sales_total",
		Help: "Sale operations by kind and outcome.",
	}, []string{"op", "outcome"})
	value := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "atelier_sale_grand_total",
		Help:    "Grand total of recorded sales.",
		Buckets: prometheus.ExponentialBuckets(10, 2.5, 10),
	})
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_stock_adjustments_total",
		Help: "Stock adjustments by source and result.",
	}, []string{"source", "result"})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_jobs_total",
		Help: "Background job runs by task and outcome.",
	}, []string{"task", "outcome"})
	registry.MustRegister(requests, duration, sales, value, adjustments, jobs)
	// Zero series so dashboards render before the first event.
	jobs.WithLabelValues("stock:low_alert", "sent")
	sales.WithLabelValues("record", "fatal")
	sales.WithLabelValues("delete", "fatal")
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		salesTotal:       sales,
		saleValue:        value,
		stockAdjustments: adjustments,
		jobsTotal:        jobs,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveSale counts a sale operation (record, update, delete) and its outcome.
func (m *Metrics) ObserveSale(op, outcome string) {
	if m == nil {
		return
	}
	m.salesTotal.WithLabelValues(op, outcome).Inc()
}

// ObserveSaleValue records the grand total of a recorded sale.
func (m *Metrics) ObserveSaleValue(total float64) {
	if m == nil {
		return
	}
	m.saleValue.Observe(total)
}

// ObserveStockAdjustment counts a stock change by source and result.
func (m *Metrics) ObserveStockAdjustment(source, result string) {
	if m == nil {
		return
	}
	m.stockAdjustments.WithLabelValues(source, result).Inc()
}

// ObserveJob counts a background job run.
func (m *Metrics) ObserveJob(task, outcome string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(task, outcome).Inc()
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
