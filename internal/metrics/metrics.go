// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rollupd"

const (
	LabelAggregation = "aggregation"
	LabelGranularity = "granularity"
	LabelBackend     = "backend"
	LabelReason      = "reason"
	LabelOutcome     = "outcome"
	LabelSource      = "source"
)

// Engine metrics
var (
	// IngestedEvents counts events admitted into a buffer, by admission outcome.
	IngestedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "ingested_events_total",
		Help:      "Total number of events admitted, by buffer outcome",
	}, []string{LabelAggregation, LabelOutcome})

	// RejectedEvents counts events rejected before admission.
	RejectedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "rejected_events_total",
		Help:      "Total number of events rejected before admission",
	}, []string{LabelAggregation, LabelReason})

	// DroppedEvents counts events discarded by the drop-older-than-buffer policy.
	DroppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "buffer",
		Name:      "dropped_events_total",
		Help:      "Total number of events older than the buffer window that were dropped",
	}, []string{LabelAggregation})

	// FlushedBuckets counts finest buckets whose cascade completed.
	FlushedBuckets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "flushed_buckets_total",
		Help:      "Total number of finest-granularity buckets cascaded to every level",
	}, []string{LabelAggregation})

	// CascadeFailures counts cascade attempts that stopped at a level.
	CascadeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "cascade_failures_total",
		Help:      "Total number of cascade attempts that failed, by failing granularity",
	}, []string{LabelAggregation, LabelGranularity})

	// PendingBuckets reports flushed buckets waiting for their cascade to be retried.
	PendingBuckets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "pending_buckets",
		Help:      "Number of flushed buckets whose cascade has not completed",
	}, []string{LabelAggregation})

	// QueryLatency observes engine query latency in seconds.
	QueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "query_duration_seconds",
		Help:      "Latency of aggregation queries",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{LabelAggregation, LabelGranularity})
)

// Storage metrics
var (
	// StoreConflicts counts optimistic write attempts that lost a race.
	StoreConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "write_conflicts_total",
		Help:      "Total number of conflicting bucket writes that were retried",
	}, []string{LabelBackend})

	// PurgedRows counts rows removed by retention.
	PurgedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "purged_rows_total",
		Help:      "Total number of bucket rows deleted by retention",
	}, []string{LabelAggregation, LabelGranularity})
)

// Source metrics
var (
	// SourceMessages counts messages read from an external source, by outcome.
	SourceMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "messages_total",
		Help:      "Total number of source messages processed, by outcome",
	}, []string{LabelSource, LabelOutcome})
)
