package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method and status. Path is left out:
	// request paths carry environment api keys.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "status"},
	)

	// WebhookDeliveries counts delivery outcomes by event type and status.
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)

	// WebhookAttempts counts individual HTTP attempts by outcome class.
	WebhookAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_attempts_total", Help: "Webhook delivery attempts by outcome."},
		[]string{"outcome"},
	)

	// WebhookLatency tracks delivery attempt latencies in seconds.
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_duration_seconds", Help: "Webhook delivery attempt duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"outcome"},
	)
)

var regOnce sync.Once

// Register wires the collectors onto the registry. Safe to call more than once.
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookAttempts)
		Registry.MustRegister(WebhookLatency)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
