// Package metrics holds the process-wide Prometheus collectors for the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "triage"

var (
	// SanitizerBranch counts label classifications by branch and outcome.
	SanitizerBranch = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sanitizer",
		Name:      "branch_total",
		Help:      "Bucket label sanitizations by branch (empty, multi, single) and match result",
	}, []string{"branch", "matched"})

	// WeightLoads counts weight table loads per category and result.
	WeightLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "weights",
		Name:      "loads_total",
		Help:      "Weight table source loads by category and result",
	}, []string{"category", "result"})

	// UnknownSymptoms counts symptom codes absent from a category's table.
	UnknownSymptoms = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scoring",
		Name:      "unknown_symptoms_total",
		Help:      "Symptom codes ignored because the weight table has no entry",
	}, []string{"category"})

	// FusionPassthrough counts merges skipped because the external ranking was empty.
	FusionPassthrough = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fusion",
		Name:      "passthrough_total",
		Help:      "Merges that returned the weight ranking unchanged",
	})

	// ControllerStatus counts controller outcomes by status.
	ControllerStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "controller",
		Name:      "status_total",
		Help:      "Adaptive controller results by status",
	}, []string{"status"})

	// RetrievalDegraded counts retrieval calls that fell back to an empty ranking.
	RetrievalDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retrieval",
		Name:      "degraded_total",
		Help:      "External ranking requests that degraded to an empty ranking",
	}, []string{"reason"})

	// GateDecisions counts progression gate outcomes.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gate",
		Name:      "decisions_total",
		Help:      "Progression gate decisions by action",
	}, []string{"action"})

	// RPCRequests counts handled gRPC calls by method and status code.
	RPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "gRPC requests by method and status code",
	}, []string{"method", "code"})

	// RPCLatency observes gRPC handler latency by method.
	RPCLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "duration_seconds",
		Help:      "gRPC handler latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// BoolLabel renders a bool as a label value.
func BoolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
