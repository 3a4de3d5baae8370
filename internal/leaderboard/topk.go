// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package leaderboard

import (
	"sort"

	"github.com/watchrank/watchrank/internal/models"
)

// entryHeap is a bounded min-heap of leaderboard entries. The root is the
// weakest entry retained so far, so selecting the top k from n candidates
// costs O(n log k) instead of sorting the whole candidate set.
type entryHeap struct {
	entries []models.LeaderboardEntry
	max     int
}

// weaker orders entries for eviction: lower score first, ties resolved so
// the higher video ID is evicted before the lower one. This mirrors the
// output order of descending score with ascending video ID on ties.
func weaker(a, b models.LeaderboardEntry) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.VideoID > b.VideoID
}

// offer considers one candidate, evicting the current weakest if the heap
// is full and the candidate outranks it.
func (h *entryHeap) offer(e models.LeaderboardEntry) {
	if len(h.entries) < h.max {
		h.entries = append(h.entries, e)
		h.bubbleUp(len(h.entries) - 1)
		return
	}
	if weaker(e, h.entries[0]) {
		return
	}
	h.entries[0] = e
	h.sinkDown(0)
}

func (h *entryHeap) bubbleUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !weaker(h.entries[i], h.entries[parent]) {
			return
		}
		h.entries[i], h.entries[parent] = h.entries[parent], h.entries[i]
		i = parent
	}
}

func (h *entryHeap) sinkDown(i int) {
	n := len(h.entries)
	for {
		weakest := i
		for _, child := range []int{2*i + 1, 2*i + 2} {
			if child < n && weaker(h.entries[child], h.entries[weakest]) {
				weakest = child
			}
		}
		if weakest == i {
			return
		}
		h.entries[i], h.entries[weakest] = h.entries[weakest], h.entries[i]
		i = weakest
	}
}

// SelectTop returns the k highest-scoring entries ordered by descending
// score, ties broken by ascending video ID. Zero-score candidates are
// dropped.
func SelectTop(counts map[int64]int64, k int) []models.LeaderboardEntry {
	if k <= 0 {
		return []models.LeaderboardEntry{}
	}

	h := &entryHeap{entries: make([]models.LeaderboardEntry, 0, k), max: k}
	for videoID, score := range counts {
		if score > 0 {
			h.offer(models.LeaderboardEntry{VideoID: videoID, Score: score})
		}
	}

	out := h.entries
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].VideoID < out[j].VideoID
	})
	return out
}
