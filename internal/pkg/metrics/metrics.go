package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "timeline"

var (
	FanoutEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fanout_entries_total",
		Help:      "The total number of feed entries written by fan-out.",
	})

	FanoutBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fanout_batches_total",
		Help:      "The total number of fan-out batches by result.",
	}, []string{"result"})

	FanoutDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fanout_duration_seconds",
		Help:      "Time spent dispatching one post to all followers.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
	})

	BackfillEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backfill_entries_total",
		Help:      "The total number of feed entries written by backfill.",
	})

	CleanupEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleanup_entries_total",
		Help:      "The total number of feed entries removed by cleanup.",
	}, []string{"reason"})

	FeedReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_reads_total",
		Help:      "The total number of feed pages served by path.",
	}, []string{"path"})

	DeadLettersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dead_letters_total",
		Help:      "The total number of work items moved to the dead-letter store.",
	}, []string{"kind"})

	CounterReconciledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "counter_reconciled_users_total",
		Help:      "The total number of users whose counters were recomputed.",
	})
)
