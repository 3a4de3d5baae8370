// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package database

import (
	"context"
	"fmt"
)

// Schema notes:
//
//   - views is append-only and keyed by event_id, which is what makes the
//     durable write idempotent under broker redelivery.
//   - video_stats_hourly / video_stats_daily hold pre-aggregated counts per
//     aligned bucket. Recomputing a bucket overwrites it.
//   - video_totals is the authoritative all-time counter, incremented in
//     the same transaction as the view insert.
//   - rollup_watermark is a single row recording the exclusive end of the
//     last fully aggregated hour.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS views (
		event_id    VARCHAR PRIMARY KEY,
		video_id    BIGINT NOT NULL,
		viewer_id   VARCHAR,
		viewed_at   TIMESTAMP NOT NULL,
		ingested_at TIMESTAMP NOT NULL DEFAULT current_timestamp
	)`,
	`CREATE INDEX IF NOT EXISTS idx_views_video_time ON views (video_id, viewed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_views_time ON views (viewed_at)`,

	`CREATE TABLE IF NOT EXISTS video_stats_hourly (
		video_id     BIGINT NOT NULL,
		bucket_start TIMESTAMP NOT NULL,
		view_count   BIGINT NOT NULL,
		computed_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (video_id, bucket_start)
	)`,
	`CREATE TABLE IF NOT EXISTS video_stats_daily (
		video_id     BIGINT NOT NULL,
		bucket_start TIMESTAMP NOT NULL,
		view_count   BIGINT NOT NULL,
		computed_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (video_id, bucket_start)
	)`,

	`CREATE TABLE IF NOT EXISTS video_totals (
		video_id    BIGINT PRIMARY KEY,
		total_views BIGINT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS rollup_watermark (
		id        INTEGER PRIMARY KEY,
		watermark TIMESTAMP NOT NULL
	)`,
}

func (db *DB) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
