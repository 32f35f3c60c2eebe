package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the pipeline.
	Registry = prometheus.NewRegistry()
	// Deliveries counts delivery outcomes by event type and terminal-or-retry status.
	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook delivery attempts by event type and resulting status."},
		[]string{"event_type", "status"},
	)
	// DeliveryLatency tracks delivery attempt latencies in milliseconds.
	DeliveryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
	// QueueDepth is the number of events waiting in the in-memory delivery queue.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "webhook_queue_depth", Help: "Events waiting in the delivery queue."},
	)
	// RetriesScheduled is the number of retries currently waiting on backoff.
	RetriesScheduled = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "webhook_retries_scheduled", Help: "Retries waiting on backoff."},
	)
	// TransformerFailures counts per-endpoint transformer aborts by transformer name.
	TransformerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_transformer_failures_total", Help: "Transformer errors that skipped a single endpoint delivery."},
		[]string{"transformer"},
	)
	// EventsEmitted counts fanned-out events by event type.
	EventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_events_emitted_total", Help: "Webhook events created at emission time."},
		[]string{"event_type"},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(Deliveries)
		Registry.MustRegister(DeliveryLatency)
		Registry.MustRegister(QueueDepth)
		Registry.MustRegister(RetriesScheduled)
		Registry.MustRegister(TransformerFailures)
		Registry.MustRegister(EventsEmitted)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
