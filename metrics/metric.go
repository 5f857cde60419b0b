package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Registry = prometheus.NewRegistry()

	// TransactionCount counts committed transactions by outcome.
	TransactionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ListDB",
			Name:      "transaction_total",
			Help:      "committed and failed transactions",
		},
		[]string{"status"},
	)

	// TransactionDuration tracks commit latency, append through apply.
	TransactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ListDB",
			Name:      "transaction_duration_seconds",
			Help:      "transaction commit latency",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	// OpCount counts applied ops by space and type.
	OpCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ListDB",
			Name:      "op_total",
			Help:      "applied operations by space and type",
		},
		[]string{"space", "op"},
	)

	// ReplayedRecords counts log records re-applied on open.
	ReplayedRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ListDB",
			Name:      "replayed_records_total",
			Help:      "transaction log records re-applied on open",
		},
	)

	// QueryDuration tracks Datalog query latency.
	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ListDB",
			Name:      "query_duration_seconds",
			Help:      "datalog query evaluation latency",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	// PartitionEntities tracks the entity count of each partition.
	PartitionEntities = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ListDB",
			Name:      "partition_entities",
			Help:      "entities per space partition",
		},
		[]string{"space", "partition"},
	)
)

func init() {
	Registry.MustRegister(
		TransactionCount,
		TransactionDuration,
		OpCount,
		ReplayedRecords,
		QueryDuration,
		PartitionEntities,
	)
}
