package metrics

import "github.com/prometheus/client_golang/prometheus"

// Result sources.
const (
	SourceLocal = "local"
	SourcePeer  = "peer"
)

// Search Prometheus metrics.
var (
	SessionsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "peersearch",
			Name:      "sessions_created_total",
			Help:      "Total number of search sessions created",
		},
	)

	SessionsStreaming = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "peersearch",
			Name:      "sessions_streaming",
			Help:      "Search sessions whose result stream is still open",
		},
	)

	SessionsEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "peersearch",
			Name:      "sessions_evicted_total",
			Help:      "Closed search sessions evicted after the retention period",
		},
	)

	ResultsStreamedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peersearch",
			Name:      "results_streamed_total",
			Help:      "Search results appended to session buffers",
		},
		[]string{"source"}, // "local" / "peer"
	)

	DrainsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peersearch",
			Name:      "session_drains_total",
			Help:      "Session drains by outcome",
		},
		[]string{"result"}, // "ok" / "not_found"
	)

	PeerQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peersearch",
			Name:      "peer_queries_total",
			Help:      "Queries sent to remote peers by status",
		},
		[]string{"status"},
	)

	PeerQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "peersearch",
			Name:      "peer_query_duration_seconds",
			Help:      "Remote peer query duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	DocumentsIndexed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "peersearch",
			Name:      "documents_indexed",
			Help:      "Documents currently present in the local index",
		},
	)

	DocumentsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "peersearch",
			Name:      "documents_rejected_total",
			Help:      "Matching documents dropped by the extractor for lack of a title or summary",
		},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SessionsCreatedTotal)
	prometheus.MustRegister(SessionsStreaming)
	prometheus.MustRegister(SessionsEvictedTotal)
	prometheus.MustRegister(ResultsStreamedTotal)
	prometheus.MustRegister(DrainsTotal)
	prometheus.MustRegister(PeerQueriesTotal)
	prometheus.MustRegister(PeerQueryDuration)
	prometheus.MustRegister(DocumentsIndexed)
	prometheus.MustRegister(DocumentsRejectedTotal)
	searchMetricsRegistered = true
}
