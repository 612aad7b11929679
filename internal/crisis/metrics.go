// Prometheus metrics for crisis classification.

package crisis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// classificationsTotal counts verdicts by tier, including none.
	classificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "counseld",
			Subsystem: "crisis",
			Name:      "classifications_total",
			Help:      "Total number of message classifications by risk tier",
		},
		[]string{"tier"},
	)

	// escalationsTotal counts verdicts that require human escalation.
	escalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "counseld",
			Subsystem: "crisis",
			Name:      "escalations_total",
			Help:      "Total number of classifications requiring escalation",
		},
	)
)
