package live

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	connectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kc",
			Subsystem: "live",
			Name:      "connections",
			Help:      "Number of open list+watch connections",
		},
		[]string{"cluster", "resource"},
	)

	reconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kc",
			Subsystem: "live",
			Name:      "reconnects_total",
			Help:      "Total number of connection attempts after a failure",
		},
		[]string{"cluster", "resource"},
	)

	snapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kc",
			Subsystem: "live",
			Name:      "snapshots_total",
			Help:      "Total number of snapshots published by health",
		},
		[]string{"cluster", "resource", "health"},
	)
)

func init() {
	metrics.Registry.MustRegister(connectionsActive, reconnectsTotal, snapshotsTotal)
}
