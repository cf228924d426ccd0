// Package metrics exposes prometheus collectors for sync and search.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes.
const (
	ResultOK     = "ok"
	ResultEmpty  = "empty"
	ResultFailed = "failed"
)

var (
	// SyncCyclesTotal counts sync cycles by result and error code.
	SyncCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowsearch_sync_cycles_total",
			Help: "Total number of sync cycles",
		},
		[]string{"result", "code"},
	)
	// SyncDuration is the wall time of a sync cycle.
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rowsearch_sync_cycle_duration_seconds",
			Help:    "Sync cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	// RowsIngestedTotal counts committed source rows.
	RowsIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rowsearch_rows_ingested_total",
			Help: "Total number of source rows committed to the index",
		},
	)
	// CheckpointKey is the last committed row key.
	CheckpointKey = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rowsearch_checkpoint_key",
			Help: "Last committed source row key",
		},
	)
	// SearchRequestsTotal counts searches by status.
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowsearch_search_requests_total",
			Help: "Total number of search requests",
		},
		[]string{"status"},
	)
	// SearchDuration is the latency of searches.
	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rowsearch_search_duration_seconds",
			Help:    "Search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// ObserveCycle records one finished sync cycle.
func ObserveCycle(result, code string, rows int, elapsed time.Duration) {
	SyncCyclesTotal.WithLabelValues(result, code).Inc()
	SyncDuration.Observe(elapsed.Seconds())
	if rows > 0 {
		RowsIngestedTotal.Add(float64(rows))
	}
}

// ObserveSearch records one search.
func ObserveSearch(status string, elapsed time.Duration) {
	SearchRequestsTotal.WithLabelValues(status).Inc()
	SearchDuration.Observe(elapsed.Seconds())
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
