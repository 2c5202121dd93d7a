// Package telemetry registers the Prometheus collectors exposed at /metrics.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChatRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tenkdraft_chat_requests_total",
		Help: "Chat messages processed.",
	})

	Generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenkdraft_generations_total",
		Help: "Section generations by section and status.",
	}, []string{"section", "status"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tenkdraft_llm_request_duration_seconds",
		Help:    "LLM call latency by operation.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"operation"})

	LLMFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenkdraft_llm_failures_total",
		Help: "Failed LLM calls by operation.",
	}, []string{"operation"})

	RetrievalResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tenkdraft_retrieval_results",
		Help:    "Number of passages returned per retrieval.",
		Buckets: []float64{0, 1, 2, 4, 8, 16},
	})

	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tenkdraft_audit_write_failures_total",
		Help: "Audit records that could not be persisted.",
	})

	RefreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenkdraft_filing_refresh_runs_total",
		Help: "Scheduled filing refresh runs by status.",
	}, []string{"status"})
)

// ObserveLLM records one LLM call's latency and failure status.
func ObserveLLM(operation string, start time.Time, err error) {
	LLMRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		LLMFailures.WithLabelValues(operation).Inc()
	}
}
