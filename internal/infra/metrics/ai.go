package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiCallsLatencyMs,
		aiRetriesTotal,
		aiSchemaFailures,
		embeddingFallbacks,
	)
}

var (
	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 30000, 60000},
		},
		[]string{"operation", "model", "success"}, // operation: 'text', 'structured', 'embedding'
	)

	aiRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_retries_total",
			Help: "Retried AI calls per operation.",
		},
		[]string{"operation"},
	)

	aiSchemaFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_schema_failures_total",
			Help: "Structured results rejected by schema validation, per schema name.",
		},
		[]string{"schema"},
	)

	embeddingFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "embedding_fallbacks_total",
			Help: "Embedding calls that fell back to the zero vector.",
		},
	)
)

func ObserveAICall(operation, model string, latencyMs int, success bool) {
	aiCallsLatencyMs.WithLabelValues(norm(operation), norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncAIRetry(operation string) {
	aiRetriesTotal.WithLabelValues(norm(operation)).Inc()
}

func IncSchemaFailure(schema string) {
	aiSchemaFailures.WithLabelValues(norm(schema)).Inc()
}

func IncEmbeddingFallback() { embeddingFallbacks.Inc() }
