package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion and retrieval pipeline metrics.
var (
	PassagesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pasichat",
			Name:      "passages_ingested_total",
			Help:      "Passages stored in the vector index, by outcome",
		},
		[]string{"source", "status"}, // source: "fact"/"document"; status: "stored"/"failed"
	)

	RetrievalQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pasichat",
			Name:      "retrieval_queries_total",
			Help:      "Similarity queries issued against the vector index",
		},
		[]string{"status"}, // "hit" / "empty" / "error"
	)

	ExpansionRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pasichat",
			Name:      "expansion_retries_total",
			Help:      "Synonym-expansion retries after an empty result",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(PassagesIngestedTotal)
	prometheus.MustRegister(RetrievalQueriesTotal)
	prometheus.MustRegister(ExpansionRetriesTotal)
	pipelineMetricsRegistered = true
}
