// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package models

import "time"

// LeaderboardEntry is one ranked video within a snapshot.
type LeaderboardEntry struct {
	VideoID int64 `json:"video_id"`
	Score   int64 `json:"score"`
}

// LeaderboardSnapshot is an immutable, fully materialized ranking for one
// timeframe. Snapshots are built off to the side and published with a single
// pointer swap, so readers always observe exactly one complete generation.
// Entries are ordered by descending score, ties broken by ascending video ID.
type LeaderboardSnapshot struct {
	Timeframe Timeframe          `json:"timeframe"`
	Entries   []LeaderboardEntry `json:"entries"`
	BuiltAt   time.Time          `json:"built_at"`
	Version   uint64             `json:"version"`
}

// Top returns the first k entries without copying the backing array. Callers
// must treat the result as read-only; snapshots are never mutated after
// publication.
func (s *LeaderboardSnapshot) Top(k int) []LeaderboardEntry {
	if k >= len(s.Entries) {
		return s.Entries
	}
	return s.Entries[:k]
}

// Age reports how long ago the snapshot was built.
func (s *LeaderboardSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.BuiltAt)
}
