package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Registry operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationErrors   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Coordination metrics
	ConflictsTotal *prometheus.CounterVec
	ClassesClaimed prometheus.Counter
	ClassesSkipped prometheus.Counter

	// Diff metrics
	ObjectsInserted prometheus.Counter
	ObjectsOutdated prometheus.Counter
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		OperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_operations_total",
				Help: "Total number of registry operations",
			},
			[]string{"operation"},
		),

		OperationErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_operation_errors_total",
				Help: "Total number of failed registry operations",
			},
			[]string{"operation", "error_type"},
		),

		OperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_operation_duration_seconds",
				Help:    "Duration of registry operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		ConflictsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_conflicts_total",
				Help: "Total number of watched transactions invalidated by concurrent modification",
			},
			[]string{"operation"},
		),

		ClassesClaimed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tracker_classes_claimed_total",
				Help: "Total number of classes claimed for processing",
			},
		),

		ClassesSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tracker_classes_skipped_total",
				Help: "Total number of classes skipped after losing a claim race",
			},
		),

		ObjectsInserted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tracker_objects_inserted_total",
				Help: "Total number of new objects inserted as in-process",
			},
		),

		ObjectsOutdated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tracker_objects_outdated_total",
				Help: "Total number of outdated objects removed from processed sets",
			},
		),
	}
}
