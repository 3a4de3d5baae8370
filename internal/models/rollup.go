// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package models

import "time"

// Granularity identifies the bucket width of a rollup record.
type Granularity string

const (
	GranularityHour Granularity = "hour"
	GranularityDay  Granularity = "day"
)

// RollupRecord is a durable pre-aggregated view count for one video over one
// aligned time bucket. Recomputing a bucket replaces the stored count, so
// rollups are idempotent by construction.
type RollupRecord struct {
	VideoID     int64       `json:"video_id"`
	BucketStart time.Time   `json:"bucket_start"`
	Granularity Granularity `json:"granularity"`
	ViewCount   int64       `json:"view_count"`
}

// BucketEnd returns the exclusive end of the record's bucket.
func (r *RollupRecord) BucketEnd() time.Time {
	switch r.Granularity {
	case GranularityDay:
		return r.BucketStart.Add(24 * time.Hour)
	default:
		return r.BucketStart.Add(time.Hour)
	}
}
