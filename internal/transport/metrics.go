package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

var (
	connectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "channel",
		Name:      "state",
		Help:      "Connection state (0 disconnected, 1 connecting, 2 connected).",
	})

	reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "channel",
		Name:      "reconnect_attempts_total",
		Help:      "Reconnect attempts made after unexpected closes.",
	})

	eventsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "channel",
		Name:      "events_sent_total",
		Help:      "Events transmitted on the live connection.",
	}, []string{"type"})

	inboundDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "channel",
		Name:      "inbound_dropped_total",
		Help:      "Malformed inbound messages that were logged and dropped.",
	})
)

func init() {
	prometheus.MustRegister(connectionState, reconnects, eventsSent, inboundDropped)
}

var tracer = otel.Tracer("github.com/example/planboard/transport")
