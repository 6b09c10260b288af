package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Submissions counts submit calls by outcome.
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elric_submissions_total",
			Help: "The total number of job submissions, by outcome.",
		},
		[]string{"outcome"},
	)

	// Dispatches counts payloads handed to a routing key's queue.
	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elric_dispatches_total",
			Help: "The total number of payloads enqueued, by routing key.",
		},
		[]string{"route"},
	)

	// DispatchErrors counts failed enqueues.
	DispatchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elric_dispatch_errors_total",
			Help: "The total number of failed enqueues, by routing key.",
		},
		[]string{"route"},
	)

	// JobsRetired counts jobs removed because their trigger is exhausted.
	JobsRetired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "elric_jobs_retired_total",
			Help: "The total number of jobs removed after their last fire.",
		},
	)

	// MissedRuns counts fire times skipped by collapsed catch-up.
	MissedRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "elric_missed_runs_total",
			Help: "The total number of elapsed fire times collapsed into a single dispatch.",
		},
	)

	// StoreMisses counts update, remove and replace calls on unknown ids.
	StoreMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elric_store_not_found_total",
			Help: "The total number of store mutations that found no job, by operation.",
		},
		[]string{"operation"},
	)

	// TickDuration is a histogram of the time spent processing due jobs.
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "elric_tick_duration_seconds",
			Help:    "A histogram of scheduler tick duration.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	// StoredJobs is the number of jobs in the store after the last tick.
	StoredJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "elric_stored_jobs",
			Help: "The number of pending jobs in the job store.",
		},
	)

	// NextWakeSeconds is the sleep computed by the last tick.
	NextWakeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "elric_next_wake_seconds",
			Help: "The wait computed by the last scheduler tick.",
		},
	)
)
