// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchRuns counts completed fetch-phase runs by outcome.
	FetchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ctihub_fetch_runs_total",
		Help: "The total number of fetch runs, labeled by outcome.",
	}, []string{"outcome"})

	// SourceItems counts items fetched per source.
	SourceItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ctihub_source_items_total",
		Help: "The total number of items fetched, labeled by source.",
	}, []string{"source"})

	// SourceErrors counts whole-source failures per source.
	SourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ctihub_source_errors_total",
		Help: "The total number of source fetch failures, labeled by source.",
	}, []string{"source"})

	// RecordsInserted counts freshly inserted records.
	RecordsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ctihub_records_inserted_total",
		Help: "The total number of new records inserted.",
	})

	// RecordsMatched counts upserts that hit an existing record.
	RecordsMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ctihub_records_matched_total",
		Help: "The total number of upserts that matched an existing record.",
	})

	// FetchDuration observes wall time of the locked fetch phase.
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ctihub_fetch_duration_seconds",
		Help:    "Wall time spent inside the fetch phase.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)
