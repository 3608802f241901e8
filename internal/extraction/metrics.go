package extraction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patternd",
		Subsystem: "llm",
		Name:      "requests_total",
		Help:      "LLM refinement API requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	llmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "patternd",
		Subsystem: "llm",
		Name:      "request_duration_seconds",
		Help:      "LLM refinement API request latency.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider"})
)

func observeLLMRequest(provider string, seconds float64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	llmRequestsTotal.WithLabelValues(provider, outcome).Inc()
	llmRequestDuration.WithLabelValues(provider).Observe(seconds)
}
