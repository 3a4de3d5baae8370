// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

// Package metrics exposes Prometheus instrumentation for the ingest
// pipeline, the view ledger, the rollup and leaderboard jobs, the query
// resolver tiers, and the HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest pipeline.

	IngestEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "View events processed by the ingest pipeline, by outcome",
		},
		[]string{"outcome"}, // "accepted", "duplicate", "invalid", "failed"
	)

	IngestProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_processing_duration_seconds",
			Help:    "End-to-end duration of processing a single view event",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestPoisonedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_poisoned_messages_total",
			Help: "Messages parked on the poison topic after exhausting retries",
		},
	)

	IngestBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_store_breaker_open",
			Help: "1 when the durable store circuit breaker is open",
		},
	)

	// View ledger.

	LedgerEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_entries",
			Help: "View entries currently resident in the in-memory ledger",
		},
	)

	LedgerVideos = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_videos",
			Help: "Distinct videos tracked by the in-memory ledger",
		},
	)

	LedgerEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_evictions_total",
			Help: "Ledger entries evicted past the retention horizon",
		},
	)

	// Rollup aggregator.

	RollupBucketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollup_buckets_total",
			Help: "Rollup buckets processed, by granularity and status",
		},
		[]string{"granularity", "status"}, // status: "ok", "error"
	)

	RollupRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollup_run_duration_seconds",
			Help:    "Duration of a full rollup pass",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	RollupWatermarkAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollup_watermark_age_seconds",
			Help: "Age of the rollup high-water mark relative to now",
		},
	)

	// Leaderboard builder.

	LeaderboardBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_builds_total",
			Help: "Leaderboard snapshot builds, by timeframe and status",
		},
		[]string{"timeframe", "status"},
	)

	LeaderboardBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leaderboard_build_duration_seconds",
			Help:    "Duration of building one timeframe's snapshot",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"timeframe"},
	)

	LeaderboardSnapshotAge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "leaderboard_snapshot_age_seconds",
			Help: "Age of the live snapshot per timeframe",
		},
		[]string{"timeframe"},
	)

	// Query resolver.

	ResolverQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_queries_total",
			Help: "Analytics queries served, by operation and source tier",
		},
		[]string{"operation", "source"}, // source: "snapshot", "rollup", "ledger", "stale_snapshot", "error"
	)

	ResolverQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resolver_query_duration_seconds",
			Help:    "Query resolution latency by source tier",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	ResolverRawScanRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resolver_raw_scan_rejected_total",
			Help: "Tier-3 raw scans rejected by the rate limiter",
		},
	)

	// Durable store.

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// HTTP API.

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "endpoint", "status"},
	)
)

// RecordIngestEvent records one processed event and its latency.
func RecordIngestEvent(outcome string, duration time.Duration) {
	IngestEventsTotal.WithLabelValues(outcome).Inc()
	IngestProcessingDuration.Observe(duration.Seconds())
}

// RecordDBQuery records a durable-store query with its outcome.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records one served HTTP request.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	APIRequestsTotal.WithLabelValues(method, endpoint, code).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint, code).Observe(duration.Seconds())
}

// RecordRollupBucket records one processed rollup bucket.
func RecordRollupBucket(granularity string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	RollupBucketsTotal.WithLabelValues(granularity, status).Inc()
}

// RecordLeaderboardBuild records one snapshot build attempt.
func RecordLeaderboardBuild(timeframe string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	LeaderboardBuildsTotal.WithLabelValues(timeframe, status).Inc()
	LeaderboardBuildDuration.WithLabelValues(timeframe).Observe(duration.Seconds())
}

// RecordResolverQuery records a resolved query and which tier served it.
func RecordResolverQuery(operation, source string, duration time.Duration) {
	ResolverQueriesTotal.WithLabelValues(operation, source).Inc()
	ResolverQueryDuration.WithLabelValues(source).Observe(duration.Seconds())
}
