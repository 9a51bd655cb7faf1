package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus collectors of one server instance. Each
// instance owns its registry so several hubs can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	Connections       prometheus.Gauge
	InboundEvents     *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	EncodedEvents     prometheus.Counter
	DroppedDeliveries prometheus.Counter
	RateLimited       prometheus.Counter
	SlowClients       prometheus.Counter
}

// NewMetrics registers the chat collectors plus Go runtime and process
// collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gochat_connections",
			Help: "Open WebSocket connections",
		}),
		InboundEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gochat_inbound_events_total",
				Help: "Inbound client events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		Deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gochat_deliveries_total",
				Help: "Outbound events queued to connections",
			},
			[]string{"type"},
		),
		EncodedEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "gochat_encoded_events_total",
			Help: "Outbound events encoded, one per fanout",
		}),
		DroppedDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "gochat_dropped_deliveries_total",
			Help: "Outbound events dropped because the target was gone or its queue full",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "gochat_rate_limited_events_total",
			Help: "Inbound events discarded by the per-connection rate limit",
		}),
		SlowClients: factory.NewCounter(prometheus.CounterOpts{
			Name: "gochat_slow_clients_dropped_total",
			Help: "Connections dropped because their send queue was full",
		}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
