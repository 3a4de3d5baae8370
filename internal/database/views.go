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

// InsertView durably records a view event. The insert and the all-time
// counter increment commit in one transaction, and the counter only moves
// when the event_id was not already present, so broker redelivery can never
// double-count. Returns false when the event was a duplicate.
func (db *DB) InsertView(ctx context.Context, ev *models.ViewEvent) (bool, error) {
	start := time.Now()
	inserted, err := db.insertView(ctx, ev)
	metrics.RecordDBQuery("insert", "views", time.Since(start), err)
	return inserted, err
}

func (db *DB) insertView(ctx context.Context, ev *models.ViewEvent) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin insert view: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO views (event_id, video_id, viewer_id, viewed_at) VALUES (?, ?, ?, ?)`,
		ev.DedupKey(), ev.VideoID, ev.ViewerID, ev.ViewedAt())
	if err != nil {
		return false, fmt.Errorf("insert view: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert view rows affected: %w", err)
	}
	if n == 0 {
		return false, tx.Commit()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO video_totals (video_id, total_views) VALUES (?, 1)
		 ON CONFLICT (video_id) DO UPDATE SET total_views = video_totals.total_views + 1`,
		ev.VideoID)
	if err != nil {
		return false, fmt.Errorf("increment total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit view: %w", err)
	}
	return true, nil
}

// CountViewsByVideo aggregates raw views per video over [from, to).
func (db *DB) CountViewsByVideo(ctx context.Context, from, to time.Time) (map[int64]int64, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT video_id, COUNT(*) FROM views WHERE viewed_at >= ? AND viewed_at < ? GROUP BY video_id`,
		from, to)
	metrics.RecordDBQuery("count_by_video", "views", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("count views by video: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[int64]int64)
	for rows.Next() {
		var videoID, n int64
		if err := rows.Scan(&videoID, &n); err != nil {
			return nil, fmt.Errorf("scan view count: %w", err)
		}
		counts[videoID] = n
	}
	return counts, rows.Err()
}

// CountViews returns the raw view count for one video over [from, to).
func (db *DB) CountViews(ctx context.Context, videoID int64, from, to time.Time) (int64, error) {
	start := time.Now()
	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM views WHERE video_id = ? AND viewed_at >= ? AND viewed_at < ?`,
		videoID, from, to).Scan(&n)
	metrics.RecordDBQuery("count", "views", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("count views: %w", err)
	}
	return n, nil
}

// TotalViews returns the authoritative all-time counter for one video.
func (db *DB) TotalViews(ctx context.Context, videoID int64) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT total_views FROM video_totals WHERE video_id = ?`, videoID).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query total views: %w", err)
	}
	return n, nil
}

// AllTotals streams every all-time counter, used to rebuild the ledger's
// counters on startup.
func (db *DB) AllTotals(ctx context.Context) (map[int64]int64, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT video_id, total_views FROM video_totals`)
	metrics.RecordDBQuery("all", "video_totals", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	totals := make(map[int64]int64)
	for rows.Next() {
		var videoID, n int64
		if err := rows.Scan(&videoID, &n); err != nil {
			return nil, fmt.Errorf("scan total: %w", err)
		}
		totals[videoID] = n
	}
	return totals, rows.Err()
}

// RecentView is one row streamed out of the views table during recovery.
type RecentView struct {
	EventID  string
	VideoID  int64
	ViewedAt time.Time
}

// StreamViewsSince walks raw views newer than since, oldest first, invoking
// fn per row. Used to repopulate the ledger after a restart.
func (db *DB) StreamViewsSince(ctx context.Context, since time.Time, fn func(RecentView) error) error {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT event_id, video_id, viewed_at FROM views WHERE viewed_at >= ? ORDER BY viewed_at ASC`,
		since)
	metrics.RecordDBQuery("stream_since", "views", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("stream views: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var v RecentView
		if err := rows.Scan(&v.EventID, &v.VideoID, &v.ViewedAt); err != nil {
			return fmt.Errorf("scan view row: %w", err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return rows.Err()
}

// RebuildTotalsFromViews recomputes every all-time counter from the raw
// views table. Last-ditch recovery for when video_totals itself is lost.
func (db *DB) RebuildTotalsFromViews(ctx context.Context) (map[int64]int64, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT video_id, COUNT(*) FROM views GROUP BY video_id`)
	metrics.RecordDBQuery("rebuild_totals", "views", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("rebuild totals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	totals := make(map[int64]int64)
	for rows.Next() {
		var videoID, n int64
		if err := rows.Scan(&videoID, &n); err != nil {
			return nil, fmt.Errorf("scan rebuilt total: %w", err)
		}
		totals[videoID] = n
	}
	return totals, rows.Err()
}
