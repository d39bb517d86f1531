package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"matchpass/internal/types"
)

// PrometheusMetrics records API request metrics and ledger events on its own
// registry. It satisfies both core.MetricsCollector and types.LedgerMetrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	apiRequests  *prometheus.CounterVec
	apiDuration  *prometheus.HistogramVec
	consumptions *prometheus.CounterVec
	fulfillments *prometheus.CounterVec
	redemptions  *prometheus.CounterVec
	counts       *prometheus.CounterVec
}

var _ types.LedgerMetrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the ledger collectors plus the Go runtime
// and process collectors on a fresh registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchpass_api_requests_total",
		Help: "Counts API requests by method, route and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matchpass_api_duration_seconds",
		Help:    "API request latency per method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	consumptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchpass_credit_consumptions_total",
		Help: "Credit consumption attempts by outcome.",
	}, []string{"outcome"})

	fulfillments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchpass_fulfillments_total",
		Help: "Payment fulfillment attempts by product and outcome.",
	}, []string{"product_code", "outcome"})

	redemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchpass_promo_redemptions_total",
		Help: "Promo redemption attempts by outcome.",
	}, []string{"outcome"})

	counts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchpass_ledger_events_total",
		Help: "Bulk ledger events (revocations, expiries, top-ups).",
	}, []string{"metric"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		apiRequests,
		apiDuration,
		consumptions,
		fulfillments,
		redemptions,
		counts,
	)

	return &PrometheusMetrics{
		registry:     registry,
		apiRequests:  apiRequests,
		apiDuration:  apiDuration,
		consumptions: consumptions,
		fulfillments: fulfillments,
		redemptions:  redemptions,
		counts:       counts,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest records one API request. route should be the matched route
// pattern, not the raw path, to keep label cardinality bounded.
func (m *PrometheusMetrics) RecordRequest(method, route, status string, duration time.Duration) {
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordConsumption(_ context.Context, outcome string) {
	m.consumptions.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) RecordFulfillment(_ context.Context, productCode string, outcome string) {
	m.fulfillments.WithLabelValues(productCode, outcome).Inc()
}

func (m *PrometheusMetrics) RecordRedemption(_ context.Context, outcome string) {
	m.redemptions.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) RecordCount(_ context.Context, metric string, n int) {
	if n <= 0 {
		return
	}
	m.counts.WithLabelValues(metric).Add(float64(n))
}
