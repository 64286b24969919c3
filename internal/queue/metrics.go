package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "outbox",
		Name:      "pending_events",
		Help:      "Outbound events waiting for a connected channel.",
	})

	queueEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "outbox",
		Name:      "enqueued_total",
		Help:      "Events queued while the channel was offline.",
	})
)

func init() {
	prometheus.MustRegister(queueDepth, queueEnqueued)
}
