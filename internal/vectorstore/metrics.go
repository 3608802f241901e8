package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patternd",
		Subsystem: "vectorstore",
		Name:      "operations_total",
		Help:      "Vector store operations by backend and operation.",
	}, []string{"backend", "op"})

	storeDocs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patternd",
		Subsystem: "vectorstore",
		Name:      "documents_total",
		Help:      "Documents touched by vector store operations.",
	}, []string{"backend", "op"})

	storeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patternd",
		Subsystem: "vectorstore",
		Name:      "errors_total",
		Help:      "Vector store operation failures.",
	}, []string{"backend", "op"})
)

func observeStoreOp(backend, op string, docs int) {
	storeOps.WithLabelValues(backend, op).Inc()
	storeDocs.WithLabelValues(backend, op).Add(float64(docs))
}

func observeStoreError(backend, op string) {
	storeErrors.WithLabelValues(backend, op).Inc()
}
