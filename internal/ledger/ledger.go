// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

// Package ledger holds the in-memory, time-indexed record of recent view
// events, one sorted timeline per video, plus the all-time counters that
// survive eviction. It is the low-latency source for sliding-window counts;
// the durable store remains the source of truth for recovery.
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/watchrank/watchrank/internal/metrics"
)

// Entry is one retained view occurrence.
type Entry struct {
	EventID string
	At      time.Time
}

// entry is the internal representation; timestamps are unix nanoseconds so
// comparisons stay cheap inside the hot path.
type entry struct {
	ts      int64
	eventID string
}

// videoTimeline is the per-video sorted slice of entries. Entries are kept
// ordered by timestamp, ties ordered by event ID, which makes inserts
// deterministic and duplicate checks a bounded scan of the equal-timestamp
// run.
type videoTimeline struct {
	mu      sync.RWMutex
	entries []entry
	total   int64
}

// Ledger is the concurrent store of per-video timelines.
type Ledger struct {
	mu        sync.RWMutex
	videos    map[int64]*videoTimeline
	retention time.Duration
}

// New creates a ledger retaining entries for the given horizon.
func New(retention time.Duration) *Ledger {
	return &Ledger{
		videos:    make(map[int64]*videoTimeline),
		retention: retention,
	}
}

// Retention returns the configured horizon.
func (l *Ledger) Retention() time.Duration { return l.retention }

func (l *Ledger) timeline(videoID int64) *videoTimeline {
	l.mu.RLock()
	tl := l.videos[videoID]
	l.mu.RUnlock()
	if tl != nil {
		return tl
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if tl = l.videos[videoID]; tl == nil {
		tl = &videoTimeline{}
		l.videos[videoID] = tl
		metrics.LedgerVideos.Set(float64(len(l.videos)))
	}
	return tl
}

// Insert records a view occurrence. The insert is idempotent on event ID:
// recording the same (eventID, at) pair again is a no-op and returns false.
// The all-time counter is NOT touched here; callers increment it exactly
// once per accepted event via IncrementTotal.
func (l *Ledger) Insert(videoID int64, eventID string, at time.Time) bool {
	tl := l.timeline(videoID)
	ts := at.UnixNano()

	tl.mu.Lock()
	defer tl.mu.Unlock()

	i := sort.Search(len(tl.entries), func(i int) bool {
		e := tl.entries[i]
		return e.ts > ts || (e.ts == ts && e.eventID >= eventID)
	})
	if i < len(tl.entries) && tl.entries[i].ts == ts && tl.entries[i].eventID == eventID {
		return false
	}

	tl.entries = append(tl.entries, entry{})
	copy(tl.entries[i+1:], tl.entries[i:])
	tl.entries[i] = entry{ts: ts, eventID: eventID}
	metrics.LedgerEntries.Inc()
	return true
}

// RangeCount returns the number of entries for videoID with from <= t < to.
func (l *Ledger) RangeCount(videoID int64, from, to time.Time) int64 {
	l.mu.RLock()
	tl := l.videos[videoID]
	l.mu.RUnlock()
	if tl == nil {
		return 0
	}

	lo, hi := from.UnixNano(), to.UnixNano()
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	start := sort.Search(len(tl.entries), func(i int) bool { return tl.entries[i].ts >= lo })
	end := sort.Search(len(tl.entries), func(i int) bool { return tl.entries[i].ts >= hi })
	return int64(end - start)
}

// RangeScan returns the entries for videoID with from <= t < to, oldest
// first. The result is a copy and safe to retain.
func (l *Ledger) RangeScan(videoID int64, from, to time.Time) []Entry {
	l.mu.RLock()
	tl := l.videos[videoID]
	l.mu.RUnlock()
	if tl == nil {
		return nil
	}

	lo, hi := from.UnixNano(), to.UnixNano()
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	start := sort.Search(len(tl.entries), func(i int) bool { return tl.entries[i].ts >= lo })
	end := sort.Search(len(tl.entries), func(i int) bool { return tl.entries[i].ts >= hi })
	if start >= end {
		return nil
	}

	out := make([]Entry, 0, end-start)
	for _, e := range tl.entries[start:end] {
		out = append(out, Entry{EventID: e.eventID, At: time.Unix(0, e.ts).UTC()})
	}
	return out
}

// EvictBefore drops entries for one video older than cutoff, returning the
// number removed. All-time counters are unaffected.
func (l *Ledger) EvictBefore(videoID int64, cutoff time.Time) int {
	l.mu.RLock()
	tl := l.videos[videoID]
	l.mu.RUnlock()
	if tl == nil {
		return 0
	}
	return tl.evictBefore(cutoff.UnixNano())
}

// EvictAllBefore drops entries older than cutoff across every video.
func (l *Ledger) EvictAllBefore(cutoff time.Time) int {
	ts := cutoff.UnixNano()
	removed := 0
	for _, tl := range l.timelines() {
		removed += tl.evictBefore(ts)
	}
	return removed
}

func (tl *videoTimeline) evictBefore(ts int64) int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	n := sort.Search(len(tl.entries), func(i int) bool { return tl.entries[i].ts >= ts })
	if n == 0 {
		return 0
	}
	remaining := len(tl.entries) - n
	copy(tl.entries, tl.entries[n:])
	for i := remaining; i < len(tl.entries); i++ {
		tl.entries[i] = entry{}
	}
	tl.entries = tl.entries[:remaining]
	metrics.LedgerEntries.Sub(float64(n))
	metrics.LedgerEvictionsTotal.Add(float64(n))
	return n
}

// IncrementTotal bumps the all-time counter for a video. Called once per
// accepted event regardless of whether the event landed in the timeline.
func (l *Ledger) IncrementTotal(videoID int64) {
	tl := l.timeline(videoID)
	tl.mu.Lock()
	tl.total++
	tl.mu.Unlock()
}

// SetTotal overwrites a video's all-time counter. Used during recovery when
// rebuilding from the durable store.
func (l *Ledger) SetTotal(videoID, total int64) {
	tl := l.timeline(videoID)
	tl.mu.Lock()
	tl.total = total
	tl.mu.Unlock()
}

// TotalViews returns the all-time counter for a video.
func (l *Ledger) TotalViews(videoID int64) int64 {
	l.mu.RLock()
	tl := l.videos[videoID]
	l.mu.RUnlock()
	if tl == nil {
		return 0
	}
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	return tl.total
}

// VideoIDs returns every video the ledger currently knows about, in no
// particular order.
func (l *Ledger) VideoIDs() []int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]int64, 0, len(l.videos))
	for id := range l.videos {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the number of retained entries across all videos.
func (l *Ledger) Len() int {
	n := 0
	for _, tl := range l.timelines() {
		tl.mu.RLock()
		n += len(tl.entries)
		tl.mu.RUnlock()
	}
	return n
}

func (l *Ledger) timelines() []*videoTimeline {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*videoTimeline, 0, len(l.videos))
	for _, tl := range l.videos {
		out = append(out, tl)
	}
	return out
}
