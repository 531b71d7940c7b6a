// Package metrics exposes Prometheus collectors for routing, generation,
// query execution and the HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	routingDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insights_routing_decisions_total",
			Help: "Total number of routing decisions by tier and strategy.",
		},
		[]string{"tier", "strategy"},
	)
	generationResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insights_generation_results_total",
			Help: "Total number of generation results by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)
	generationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insights_generation_duration_seconds",
			Help:    "Latency of generation backend calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"backend"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insights_query_executions_total",
			Help: "Total number of SQL executions against session datasets by status.",
		},
		[]string{"status"},
	)
	sessionsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "insights_sessions_reaped_total",
			Help: "Total number of expired session datasets deleted by the reaper.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		routingDecisionsTotal,
		generationResultsTotal,
		generationDurationSeconds,
		queryExecutionsTotal,
		sessionsReapedTotal,
	)
}

// Execution statuses.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusRejected = "rejected"
)

func ObserveRoutingDecision(tier, strategy string) {
	routingDecisionsTotal.WithLabelValues(tier, strategy).Inc()
}

func ObserveGeneration(backend, outcome string, elapsed time.Duration) {
	generationResultsTotal.WithLabelValues(backend, outcome).Inc()
	generationDurationSeconds.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func ObserveQueryExecution(status string) {
	queryExecutionsTotal.WithLabelValues(status).Inc()
}

func AddSessionsReaped(n int) {
	if n > 0 {
		sessionsReapedTotal.Add(float64(n))
	}
}
