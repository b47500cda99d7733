package rpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are shared by every Client of a process; the client name is a label.
type Metrics struct {
	Requests    *prometheus.CounterVec
	Latency     *prometheus.HistogramVec
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	Failovers   *prometheus.CounterVec
	Exhausted   *prometheus.CounterVec
}

// NewMetrics registers the RPC collectors with registry. A nil registry
// creates unregistered collectors.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chainauth_rpc_requests_total",
			Help: "JSON-RPC attempts by client, method, endpoint host and outcome",
		}, []string{"client", "method", "endpoint", "outcome"}),
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chainauth_rpc_request_duration_seconds",
			Help:    "Duration of single JSON-RPC attempts",
			Buckets: prometheus.DefBuckets,
		}, []string{"client", "method"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chainauth_rpc_cache_hits_total",
			Help: "Calls answered from the response cache",
		}, []string{"client", "method"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chainauth_rpc_cache_misses_total",
			Help: "Cacheable calls that went to an endpoint",
		}, []string{"client", "method"}),
		Failovers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chainauth_rpc_failovers_total",
			Help: "Times a call moved on to the next endpoint",
		}, []string{"client"}),
		Exhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chainauth_rpc_all_endpoints_failed_total",
			Help: "Calls that failed on every endpoint",
		}, []string{"client"}),
	}
}
