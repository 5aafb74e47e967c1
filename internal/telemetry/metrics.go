package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	PacketsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meshcore",
		Name:      "packets_sent_total",
		Help:      "Frames handed to the radio for transmission.",
	})

	PacketsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meshcore",
		Name:      "packets_received_total",
		Help:      "Frames drained from the radio.",
	})

	ParseFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meshcore",
		Name:      "parse_failures_total",
		Help:      "Received frames discarded as malformed.",
	})

	MACFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meshcore",
		Name:      "mac_failures_total",
		Help:      "Channel messages dropped on MAC verification failure.",
	})

	DuplicatesSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meshcore",
		Name:      "duplicates_suppressed_total",
		Help:      "Flood packets ignored because our hash was already in the path.",
	})

	Rebroadcasts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meshcore",
		Name:      "rebroadcasts_total",
		Help:      "Flood packets scheduled for rebroadcast.",
	})

	QueueDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meshcore",
		Name:      "tx_queue_drops_total",
		Help:      "Outbound frames dropped by the TX queue.",
	})
)

func init() {
	Registry.MustRegister(
		PacketsSent, PacketsReceived, ParseFailures, MACFailures,
		DuplicatesSuppressed, Rebroadcasts, QueueDrops,
	)
}

// Handler exposes the registry for the host binary's /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
