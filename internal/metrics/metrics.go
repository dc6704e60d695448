// Package metrics exposes the service's Prometheus collectors. All
// collectors register on the default registry, which the router serves
// at /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RedirectsTotal counts redirect lookups by outcome: redirected,
// not_found or expired
var RedirectsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "linkforge_redirects_total",
		Help: "Redirect lookups by outcome.",
	},
	[]string{"outcome"},
)

// CacheLookupsTotal counts cache results per tier so hit ratios can be
// derived per layer
var CacheLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "linkforge_cache_lookups_total",
		Help: "Cache lookups by tier (l1, l2) and result (hit, negative_hit, miss).",
	},
	[]string{"tier", "result"},
)

// URLsCreatedTotal counts successful mapping creations
var URLsCreatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "linkforge_urls_created_total",
		Help: "Created mappings by kind (generated, custom, reused).",
	},
	[]string{"kind"},
)

// CodeGenerationRetries observes how many insert attempts each
// generated code needed before it stuck
var CodeGenerationRetries = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "linkforge_code_generation_attempts",
		Help:    "Insert attempts needed to allocate a generated short code.",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8},
	},
)

// WebhookDeliveriesTotal counts terminal webhook outcomes
var WebhookDeliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "linkforge_webhook_deliveries_total",
		Help: "Webhook deliveries by event and terminal result (delivered, failed).",
	},
	[]string{"event", "result"},
)

// WebhookQueueDropsTotal counts events shed from the full delivery
// queue
var WebhookQueueDropsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "linkforge_webhook_queue_drops_total",
		Help: "Webhook events dropped because the delivery queue was full.",
	},
	[]string{"event"},
)

// ClickEventDropsTotal counts click events shed from the analytics
// publish buffer
var ClickEventDropsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "linkforge_click_event_drops_total",
		Help: "Click events dropped because the analytics buffer was full.",
	},
)

// RequestDuration observes HTTP handler latency
var RequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "linkforge_http_request_duration_seconds",
		Help:    "HTTP request latency by method, route and status.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// SweeperRunsTotal counts background sweep executions by phase result
var SweeperRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "linkforge_sweeper_runs_total",
		Help: "Sweeper runs by result (ok, error).",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(RedirectsTotal)
	prometheus.MustRegister(CacheLookupsTotal)
	prometheus.MustRegister(URLsCreatedTotal)
	prometheus.MustRegister(CodeGenerationRetries)
	prometheus.MustRegister(WebhookDeliveriesTotal)
	prometheus.MustRegister(WebhookQueueDropsTotal)
	prometheus.MustRegister(ClickEventDropsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(SweeperRunsTotal)
}
