package reconcile

import "github.com/prometheus/client_golang/prometheus"

var (
	appliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconcile",
		Name:      "events_applied_total",
		Help:      "Inbound events applied to the local collections.",
	}, []string{"type"})

	selfFiltered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reconcile",
		Name:      "self_origin_filtered_total",
		Help:      "Inbound echoes of locally issued events that were discarded.",
	})
)

func init() {
	prometheus.MustRegister(appliedTotal, selfFiltered)
}
