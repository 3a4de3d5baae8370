// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package models

// QuerySource labels which tier of the storage hierarchy produced a query
// result, surfaced to clients for observability.
type QuerySource string

const (
	SourceSnapshot      QuerySource = "snapshot"
	SourceRollup        QuerySource = "rollup"
	SourceLedger        QuerySource = "ledger"
	SourceStaleSnapshot QuerySource = "stale_snapshot"
)

// VideoStats is the per-video analytics overlay returned by the stats
// endpoint. Window fields are pointers so that a range whose backing data is
// genuinely unavailable is reported as absent rather than a fabricated zero.
type VideoStats struct {
	VideoID    int64       `json:"video_id"`
	TotalViews int64       `json:"total_views"`
	LastHour   *int64      `json:"views_last_hour,omitempty"`
	LastDay    *int64      `json:"views_last_day,omitempty"`
	LastWeek   *int64      `json:"views_last_week,omitempty"`
	LastMonth  *int64      `json:"views_last_month,omitempty"`
	Source     QuerySource `json:"source"`
}
