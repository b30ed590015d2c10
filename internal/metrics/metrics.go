// Package metrics exposes Prometheus collectors for the LinkShelf API.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatchedRoute = "unmatched"

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	linksCreatedTotal          *prometheus.CounterVec
	metadataFetchTotal         *prometheus.CounterVec
	webhookEventsTotal         *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		linksCreatedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkshelf_links_created_total",
				Help: "Total number of links created, labeled by media type.",
			},
			[]string{"media_type"},
		)

		metadataFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkshelf_metadata_fetch_total",
				Help: "Total number of metadata extractions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		webhookEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkshelf_webhook_events_total",
				Help: "Total number of identity webhook deliveries, labeled by event type and outcome.",
			},
			[]string{"type", "outcome"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveLinkCreated increments the created link counter.
func ObserveLinkCreated(mediaType string) {
	Init()
	linksCreatedTotal.WithLabelValues(mediaType).Inc()
}

// ObserveMetadataFetch records a metadata extraction attempt.
func ObserveMetadataFetch(outcome string) {
	Init()
	metadataFetchTotal.WithLabelValues(outcome).Inc()
}

// ObserveWebhookEvent records a webhook delivery.
func ObserveWebhookEvent(eventType, outcome string) {
	Init()
	webhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// GinMiddleware records request counts and latencies keyed by the matched route template.
func GinMiddleware() gin.HandlerFunc {
	Init()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
