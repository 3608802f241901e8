package responder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var decisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "patternd",
	Subsystem: "responder",
	Name:      "decisions_total",
	Help:      "Pipeline decisions by mode and reason.",
}, []string{"mode", "reason"})

func observeDecision(mode, reason string) {
	decisions.WithLabelValues(mode, reason).Inc()
}
