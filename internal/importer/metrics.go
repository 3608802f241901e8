package importer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var conversationsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "patternd",
	Subsystem: "importer",
	Name:      "conversations_processed_total",
	Help:      "Import conversations processed, by outcome.",
}, []string{"outcome"})

// observeConversation records one processed conversation. A conversation
// that yielded at least one pattern counts as learned even if some of
// its candidates errored.
func observeConversation(created, merged, skipped, errCount int) {
	switch {
	case created+merged > 0:
		conversationsProcessed.WithLabelValues("learned").Inc()
	case skipped > 0:
		conversationsProcessed.WithLabelValues("skipped").Inc()
	case errCount > 0:
		conversationsProcessed.WithLabelValues("error").Inc()
	default:
		conversationsProcessed.WithLabelValues("empty").Inc()
	}
}
