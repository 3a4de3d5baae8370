// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package ledger

import (
	"sync/atomic"
	"time"

	"github.com/watchrank/watchrank/internal/metrics"
	"github.com/watchrank/watchrank/internal/models"
)

// snapshotSlot holds the live and the immediately preceding snapshot for one
// timeframe. Publication is a pointer swap, so readers never observe a
// partially built generation.
type snapshotSlot struct {
	current  atomic.Pointer[models.LeaderboardSnapshot]
	previous atomic.Pointer[models.LeaderboardSnapshot]
}

// SnapshotStore publishes and serves leaderboard snapshots per timeframe.
// Exactly one prior generation is retained as a degraded fallback; anything
// older is dropped at publish time.
type SnapshotStore struct {
	slots   map[models.Timeframe]*snapshotSlot
	version atomic.Uint64
}

// NewSnapshotStore creates an empty store covering every supported
// timeframe.
func NewSnapshotStore() *SnapshotStore {
	slots := make(map[models.Timeframe]*snapshotSlot, len(models.Timeframes))
	for _, tf := range models.Timeframes {
		slots[tf] = &snapshotSlot{}
	}
	return &SnapshotStore{slots: slots}
}

// NextVersion allocates a monotonically increasing generation number.
func (s *SnapshotStore) NextVersion() uint64 {
	return s.version.Add(1)
}

// Publish atomically replaces the live snapshot for its timeframe. The
// outgoing live snapshot becomes the retained prior generation.
func (s *SnapshotStore) Publish(snap *models.LeaderboardSnapshot) {
	slot, ok := s.slots[snap.Timeframe]
	if !ok {
		return
	}
	old := slot.current.Swap(snap)
	if old != nil {
		slot.previous.Store(old)
	}
	metrics.LeaderboardSnapshotAge.WithLabelValues(string(snap.Timeframe)).Set(0)
}

// Live returns the current snapshot for a timeframe, or nil before the first
// build completes.
func (s *SnapshotStore) Live(tf models.Timeframe) *models.LeaderboardSnapshot {
	slot, ok := s.slots[tf]
	if !ok {
		return nil
	}
	return slot.current.Load()
}

// Stale returns the best available snapshot regardless of age, preferring
// the live generation over the prior one. Returns nil when nothing was ever
// published.
func (s *SnapshotStore) Stale(tf models.Timeframe) *models.LeaderboardSnapshot {
	slot, ok := s.slots[tf]
	if !ok {
		return nil
	}
	if snap := slot.current.Load(); snap != nil {
		return snap
	}
	return slot.previous.Load()
}

// Fresh returns the live snapshot only if it was built within maxAge of now.
func (s *SnapshotStore) Fresh(tf models.Timeframe, now time.Time, maxAge time.Duration) *models.LeaderboardSnapshot {
	snap := s.Live(tf)
	if snap == nil || snap.Age(now) > maxAge {
		return nil
	}
	return snap
}
