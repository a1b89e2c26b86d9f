package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "acp",
			Name:      "breaker_state",
			Help:      "Current breaker state per dependency: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acp",
			Name:      "breaker_transition_total",
			Help:      "Breaker state transitions per dependency",
		},
		[]string{"target", "from", "to"},
	)
	BreakerRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acp",
			Name:      "breaker_rejected_total",
			Help:      "Calls short-circuited by an open breaker",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerRejected)
}
