package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "roomcast"

// Metrics holds every collector the server registers. Each server instance
// owns its own prometheus registry so tests can run hubs side by side.
type Metrics struct {
	registry *prometheus.Registry

	ConnectedClients prometheus.Gauge
	ConnectionsTotal prometheus.Counter
	ActiveRooms      prometheus.Gauge

	EventsTotal     *prometheus.CounterVec
	EventDuration   *prometheus.HistogramVec
	MessagesTotal   *prometheus.CounterVec
	DroppedMessages prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	HeapAllocBytes prometheus.Gauge
	Goroutines     prometheus.Gauge
	UptimeSeconds  prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected_clients",
			Help:      "Number of currently connected clients",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Total connections accepted since start",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_rooms",
			Help:      "Number of rooms with at least one member",
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Total gateway events processed by type",
		}, []string{"type"}),
		EventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "event_processing_seconds",
			Help:      "Time to process each event type",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Messages relayed by direction",
		}, []string{"direction"}),
		DroppedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_messages_total",
			Help:      "Outbound messages dropped because a client was slow",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by method, route and status",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HeapAllocBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "heap_alloc_bytes",
			Help:      "Heap bytes allocated and still in use",
		}),
		Goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "goroutines",
			Help:      "Number of live goroutines",
		}),
		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the server started",
		}),
	}

	m.registry.MustRegister(
		m.ConnectedClients,
		m.ConnectionsTotal,
		m.ActiveRooms,
		m.EventsTotal,
		m.EventDuration,
		m.MessagesTotal,
		m.DroppedMessages,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HeapAllocBytes,
		m.Goroutines,
		m.UptimeSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the exposition endpoint for this instance's registry.
// Rendering failures surface as 500s instead of crashing the process.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
