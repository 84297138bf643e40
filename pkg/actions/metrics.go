package actions

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var actionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kc",
		Subsystem: "actions",
		Name:      "completed_total",
		Help:      "Total number of actions by terminal state",
	},
	[]string{"state"},
)

func init() {
	metrics.Registry.MustRegister(actionsTotal)
}
