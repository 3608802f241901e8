package safety

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var screenDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "patternd",
	Subsystem: "safety",
	Name:      "screen_decisions_total",
	Help:      "Screening decisions by outcome and matched rule.",
}, []string{"outcome", "rule"})

func observeScreen(outcome, rule string) {
	screenDecisions.WithLabelValues(outcome, rule).Inc()
}
