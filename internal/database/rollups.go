// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/watchrank/watchrank/internal/metrics"
	"github.com/watchrank/watchrank/internal/models"
)

// Watermark returns the exclusive end of the last fully aggregated hour.
// The second return is false before the first rollup pass ever completes.
func (db *DB) Watermark(ctx context.Context) (time.Time, bool, error) {
	var wm time.Time
	err := db.conn.QueryRowContext(ctx,
		`SELECT watermark FROM rollup_watermark WHERE id = 1`).Scan(&wm)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query watermark: %w", err)
	}
	return wm.UTC(), true, nil
}

// UpsertHourlyBucket writes the counts for one aligned hour and advances the
// watermark to the bucket's end, all in one transaction. Recomputing the
// same bucket replaces the stored counts, so the operation is idempotent.
func (db *DB) UpsertHourlyBucket(ctx context.Context, bucketStart time.Time, counts map[int64]int64) error {
	start := time.Now()
	err := db.upsertHourlyBucket(ctx, bucketStart, counts)
	metrics.RecordDBQuery("upsert_bucket", "video_stats_hourly", time.Since(start), err)
	return err
}

func (db *DB) upsertHourlyBucket(ctx context.Context, bucketStart time.Time, counts map[int64]int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin hourly rollup: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	computedAt := time.Now().UTC()
	for videoID, n := range counts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO video_stats_hourly (video_id, bucket_start, view_count, computed_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (video_id, bucket_start) DO UPDATE
			 SET view_count = excluded.view_count, computed_at = excluded.computed_at`,
			videoID, bucketStart, n, computedAt)
		if err != nil {
			return fmt.Errorf("upsert hourly rollup video %d: %w", videoID, err)
		}
	}

	bucketEnd := bucketStart.Add(time.Hour)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO rollup_watermark (id, watermark) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET watermark = excluded.watermark`,
		bucketEnd)
	if err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit hourly rollup: %w", err)
	}
	return nil
}

// UpsertDailyBucket derives one day's rollup from the hourly table. Safe to
// rerun for the same day.
func (db *DB) UpsertDailyBucket(ctx context.Context, dayStart time.Time) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO video_stats_daily (video_id, bucket_start, view_count, computed_at)
		 SELECT video_id, ?, SUM(view_count), ?
		 FROM video_stats_hourly
		 WHERE bucket_start >= ? AND bucket_start < ?
		 GROUP BY video_id
		 ON CONFLICT (video_id, bucket_start) DO UPDATE
		 SET view_count = excluded.view_count, computed_at = excluded.computed_at`,
		dayStart, time.Now().UTC(), dayStart, dayStart.Add(24*time.Hour))
	metrics.RecordDBQuery("upsert_bucket", "video_stats_daily", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("upsert daily rollup for %s: %w", dayStart.Format("2006-01-02"), err)
	}
	return nil
}

func rollupTable(g models.Granularity) string {
	if g == models.GranularityDay {
		return "video_stats_daily"
	}
	return "video_stats_hourly"
}

// SumRollups sums a video's pre-aggregated counts over buckets starting in
// [from, to).
func (db *DB) SumRollups(ctx context.Context, g models.Granularity, videoID int64, from, to time.Time) (int64, error) {
	table := rollupTable(g)
	start := time.Now()
	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(view_count), 0) FROM `+table+
			` WHERE video_id = ? AND bucket_start >= ? AND bucket_start < ?`,
		videoID, from, to).Scan(&n)
	metrics.RecordDBQuery("sum", table, time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("sum %s rollups: %w", g, err)
	}
	return n, nil
}

// RollupCountsByVideo aggregates pre-computed counts per video over buckets
// starting in [from, to). This is the backbone of tier-2 ranking.
func (db *DB) RollupCountsByVideo(ctx context.Context, g models.Granularity, from, to time.Time) (map[int64]int64, error) {
	table := rollupTable(g)
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT video_id, SUM(view_count) FROM `+table+
			` WHERE bucket_start >= ? AND bucket_start < ? GROUP BY video_id`,
		from, to)
	metrics.RecordDBQuery("counts_by_video", table, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("rollup counts by video: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[int64]int64)
	for rows.Next() {
		var videoID, n int64
		if err := rows.Scan(&videoID, &n); err != nil {
			return nil, fmt.Errorf("scan rollup count: %w", err)
		}
		counts[videoID] = n
	}
	return counts, rows.Err()
}

// HasRollupsBefore reports whether any hourly bucket at or before the cutoff
// exists. Used to distinguish "no data yet" from genuine loss of
// pre-horizon aggregates.
func (db *DB) HasRollupsBefore(ctx context.Context, cutoff time.Time) (bool, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM video_stats_hourly WHERE bucket_start <= ?`, cutoff).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("probe rollups: %w", err)
	}
	return n > 0, nil
}

// CleanupHourlyBefore drops hourly buckets older than the cutoff. Daily
// buckets are kept; they are the long-horizon record.
func (db *DB) CleanupHourlyBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM video_stats_hourly WHERE bucket_start < ?`, cutoff)
	metrics.RecordDBQuery("cleanup", "video_stats_hourly", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("cleanup hourly rollups: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
