// Package metrics exposes Prometheus instrumentation for the mapping layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts collection operations (insert, save, patch,
	// delete, find) by outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neisanmongo_operations_total",
			Help: "Total number of collection operations",
		},
		[]string{"operation", "status"},
	)
	// OperationDuration is the latency of collection operations.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neisanmongo_operation_duration_seconds",
			Help:    "Collection operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	// CursorDocumentsTotal counts documents yielded by cursors.
	CursorDocumentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neisanmongo_cursor_documents_total",
			Help: "Total number of documents yielded by cursors",
		},
	)
	// CursorsOpen tracks cursors holding a live result stream.
	CursorsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neisanmongo_cursors_open",
			Help: "Number of cursors with an open result stream",
		},
	)
)
