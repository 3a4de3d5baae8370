// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package leaderboard

import (
	"testing"

	"github.com/watchrank/watchrank/internal/models"
)

func assertRanking(t *testing.T, got, want []models.LeaderboardEntry) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSelectTopOrderingAndTruncation(t *testing.T) {
	counts := map[int64]int64{5: 10, 2: 10, 9: 30, 7: 0, 3: 20}
	got := SelectTop(counts, 3)
	want := []models.LeaderboardEntry{
		{VideoID: 9, Score: 30},
		{VideoID: 3, Score: 20},
		{VideoID: 2, Score: 10},
	}
	assertRanking(t, got, want)
}

func TestSelectTopTiesBreakOnVideoID(t *testing.T) {
	counts := map[int64]int64{4: 7, 1: 7, 8: 7, 2: 7}
	got := SelectTop(counts, 3)
	want := []models.LeaderboardEntry{
		{VideoID: 1, Score: 7},
		{VideoID: 2, Score: 7},
		{VideoID: 4, Score: 7},
	}
	assertRanking(t, got, want)
}

func TestSelectTopDropsZeroScores(t *testing.T) {
	counts := map[int64]int64{1: 0, 2: 0, 3: 5}
	got := SelectTop(counts, 10)
	assertRanking(t, got, []models.LeaderboardEntry{{VideoID: 3, Score: 5}})
}

func TestSelectTopEmptyCases(t *testing.T) {
	if got := SelectTop(nil, 5); len(got) != 0 {
		t.Fatalf("nil counts: got %v, want empty", got)
	}
	if got := SelectTop(map[int64]int64{1: 3}, 0); len(got) != 0 {
		t.Fatalf("k=0: got %v, want empty", got)
	}
	if got := SelectTop(map[int64]int64{1: 3}, -1); len(got) != 0 {
		t.Fatalf("k<0: got %v, want empty", got)
	}
}

// Many more candidates than slots: the heap must keep the strongest k
// regardless of map iteration order.
func TestSelectTopEvictsWeakest(t *testing.T) {
	counts := make(map[int64]int64, 100)
	for i := int64(1); i <= 100; i++ {
		counts[i] = i
	}
	got := SelectTop(counts, 5)
	want := []models.LeaderboardEntry{
		{VideoID: 100, Score: 100},
		{VideoID: 99, Score: 99},
		{VideoID: 98, Score: 98},
		{VideoID: 97, Score: 97},
		{VideoID: 96, Score: 96},
	}
	assertRanking(t, got, want)
}
