package metrics

import "github.com/prometheus/client_golang/prometheus"

// Datastore Prometheus metrics.
var (
	DatastoreOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docstore",
			Name:      "datastore_operations_total",
			Help:      "Total number of datastore operations",
		},
		[]string{"engine", "op", "status"},
	)

	DatastoreOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docstore",
			Name:      "datastore_operation_duration_seconds",
			Help:      "Datastore operation duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"engine", "op"},
	)

	QueryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docstore",
			Name:      "query_cache_total",
			Help:      "Query cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var datastoreMetricsRegistered bool

// RegisterDatastoreMetrics registers Prometheus datastore metrics. Must be called once from main.
func RegisterDatastoreMetrics() {
	if datastoreMetricsRegistered {
		return
	}
	prometheus.MustRegister(DatastoreOpsTotal)
	prometheus.MustRegister(DatastoreOpDuration)
	prometheus.MustRegister(QueryCacheTotal)
	datastoreMetricsRegistered = true
}
