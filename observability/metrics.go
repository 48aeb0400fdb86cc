// Package observability exposes hub metrics through prometheus. The
// counters are bumped inline by the router; the gauges are refreshed
// periodically by the telemetry worker.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	ConnectionsActive prometheus.Gauge
	RoomsActive       prometheus.Gauge
	ProcessRSSBytes   prometheus.Gauge
	ProcessCPUPercent prometheus.Gauge

	MessagesTotal     prometheus.Counter
	TypingTotal       prometheus.Counter
	ReceiptsTotal     prometheus.Counter
	BroadcastsTotal   prometheus.Counter
	RejectionsTotal   prometheus.Counter
	CommandsDropped   prometheus.Counter
	DeliveriesDropped prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reviewroom_connections_active",
			Help: "Live websocket connections registered in the hub.",
		}),
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reviewroom_rooms_active",
			Help: "Discussion rooms with at least one subscriber.",
		}),
		ProcessRSSBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reviewroom_process_rss_bytes",
			Help: "Resident memory of the serving process.",
		}),
		ProcessCPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reviewroom_process_cpu_percent",
			Help: "CPU usage of the serving process.",
		}),
		MessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewroom_messages_total",
			Help: "Messages persisted and broadcast.",
		}),
		TypingTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewroom_typing_total",
			Help: "Typing signals relayed.",
		}),
		ReceiptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewroom_receipts_total",
			Help: "Read receipts written.",
		}),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewroom_broadcasts_total",
			Help: "Fan-out operations performed, all event kinds.",
		}),
		RejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewroom_rejections_total",
			Help: "Commands rejected: authorization failures and store errors.",
		}),
		CommandsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewroom_commands_dropped_total",
			Help: "Inbound commands dropped because the dispatch channel was full.",
		}),
		DeliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewroom_deliveries_dropped_total",
			Help: "Events dropped on slow connection sinks.",
		}),
	}
	registry.MustRegister(
		m.ConnectionsActive, m.RoomsActive,
		m.ProcessRSSBytes, m.ProcessCPUPercent,
		m.MessagesTotal, m.TypingTotal, m.ReceiptsTotal,
		m.BroadcastsTotal, m.RejectionsTotal,
		m.CommandsDropped, m.DeliveriesDropped,
	)
	return m
}

// Handler serves the scrape endpoint for this process's registry only.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
