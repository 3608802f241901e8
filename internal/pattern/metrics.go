package pattern

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	patternsLearned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patternd",
		Subsystem: "engine",
		Name:      "patterns_learned_total",
		Help:      "Patterns learned, by outcome (created or merged) and type.",
	}, []string{"outcome", "type"})

	verdictsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patternd",
		Subsystem: "engine",
		Name:      "verdicts_total",
		Help:      "Operator and system verdicts applied to patterns.",
	}, []string{"verdict"})

	matchSimilarity = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "patternd",
		Subsystem: "engine",
		Name:      "match_similarity",
		Help:      "Similarity scores of returned matches.",
		Buckets:   []float64{0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1.0},
	})
)

func observeLearned(outcome, patternType string) {
	patternsLearned.WithLabelValues(outcome, patternType).Inc()
}

func observeVerdict(verdict string) {
	verdictsApplied.WithLabelValues(verdict).Inc()
}

func observeMatchSimilarity(score float64) {
	matchSimilarity.Observe(score)
}
