// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/watchrank/watchrank/internal/config"
	"github.com/watchrank/watchrank/internal/ledger"
	"github.com/watchrank/watchrank/internal/models"
)

var base = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	watermark    time.Time
	hasWatermark bool
	hourly       map[int64]int64
	daily        map[int64]int64
	totals       map[int64]int64
	hasHistory   bool
	failAll      bool
	rollupCalls  int
}

func (f *fakeStore) Watermark(context.Context) (time.Time, bool, error) {
	if f.failAll {
		return time.Time{}, false, errors.New("store down")
	}
	return f.watermark, f.hasWatermark, nil
}

func (f *fakeStore) RollupCountsByVideo(_ context.Context, g models.Granularity, _, _ time.Time) (map[int64]int64, error) {
	f.rollupCalls++
	if f.failAll {
		return nil, errors.New("store down")
	}
	if g == models.GranularityDay {
		return f.daily, nil
	}
	return f.hourly, nil
}

func (f *fakeStore) SumRollups(_ context.Context, _ models.Granularity, videoID int64, _, _ time.Time) (int64, error) {
	if f.failAll {
		return 0, errors.New("store down")
	}
	return f.hourly[videoID], nil
}

func (f *fakeStore) HasRollupsBefore(context.Context, time.Time) (bool, error) {
	if f.failAll {
		return false, errors.New("store down")
	}
	return f.hasHistory, nil
}

func (f *fakeStore) AllTotals(context.Context) (map[int64]int64, error) {
	if f.failAll {
		return nil, errors.New("store down")
	}
	return f.totals, nil
}

func testConfig() config.ResolverConfig {
	return config.ResolverConfig{
		FreshnessFactor: 2,
		RawScanTimeout:  5 * time.Second,
		RawScanPerSec:   100,
		RawScanBurst:    100,
	}
}

func newTestResolver(lg *ledger.Ledger, snaps *ledger.SnapshotStore, store Store) *Resolver {
	r := New(lg, snaps, store, testConfig(), 100, 5*time.Minute)
	r.now = func() time.Time { return base }
	return r
}

func publish(t *testing.T, snaps *ledger.SnapshotStore, tf models.Timeframe, builtAt time.Time, entries ...models.LeaderboardEntry) {
	t.Helper()
	snaps.Publish(&models.LeaderboardSnapshot{
		Timeframe: tf,
		Entries:   entries,
		BuiltAt:   builtAt,
		Version:   snaps.NextVersion(),
	})
}

func TestTopKValidation(t *testing.T) {
	r := newTestResolver(ledger.New(30*24*time.Hour), ledger.NewSnapshotStore(), &fakeStore{})

	cases := []struct {
		k  int
		tf models.Timeframe
	}{
		{0, models.TimeframeHour},
		{-1, models.TimeframeHour},
		{101, models.TimeframeHour},
		{10, models.Timeframe("fortnight")},
	}
	for _, tc := range cases {
		if _, err := r.TopK(context.Background(), tc.k, tc.tf); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("TopK(%d, %q): want ErrInvalidArgument, got %v", tc.k, tc.tf, err)
		}
	}
}

func TestTopKServesFreshSnapshot(t *testing.T) {
	snaps := ledger.NewSnapshotStore()
	publish(t, snaps, models.TimeframeHour, base.Add(-time.Minute),
		models.LeaderboardEntry{VideoID: 1, Score: 10},
		models.LeaderboardEntry{VideoID: 2, Score: 5},
	)
	store := &fakeStore{failAll: true}
	r := newTestResolver(ledger.New(30*24*time.Hour), snaps, store)

	res, err := r.TopK(context.Background(), 1, models.TimeframeHour)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if res.Source != models.SourceSnapshot {
		t.Fatalf("source = %s, want %s", res.Source, models.SourceSnapshot)
	}
	if len(res.Entries) != 1 || res.Entries[0].VideoID != 1 {
		t.Fatalf("entries = %+v, want top 1 video 1", res.Entries)
	}
	if store.rollupCalls != 0 {
		t.Fatal("fresh snapshot served but store was consulted")
	}
}

func TestTopKFallsBackToRollups(t *testing.T) {
	lg := ledger.New(30 * 24 * time.Hour)
	// Two events past the watermark for video 2.
	lg.Insert(2, "tail-1", base.Add(-10*time.Minute))
	lg.Insert(2, "tail-2", base.Add(-5*time.Minute))

	store := &fakeStore{
		watermark:    base.Add(-30 * time.Minute),
		hasWatermark: true,
		hourly:       map[int64]int64{1: 7, 2: 3},
	}
	r := newTestResolver(lg, ledger.NewSnapshotStore(), store)

	res, err := r.TopK(context.Background(), 10, models.TimeframeDay)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if res.Source != models.SourceRollup {
		t.Fatalf("source = %s, want %s", res.Source, models.SourceRollup)
	}
	want := []models.LeaderboardEntry{{VideoID: 1, Score: 7}, {VideoID: 2, Score: 5}}
	assertEntries(t, res.Entries, want)
}

// Long windows read the daily table, which lags the hourly watermark by up
// to a day. Views from today's partial day live only in the ledger and the
// hourly table, so the ledger tail must reach back to the day boundary.
func TestTopKDailyStitchCoversPartialDay(t *testing.T) {
	lg := ledger.New(30 * 24 * time.Hour)
	lg.Insert(1, "m1", base.Add(-3*time.Hour))
	lg.Insert(1, "m2", base.Add(-150*time.Minute))
	lg.Insert(1, "m3", base.Add(-2*time.Hour))

	store := &fakeStore{
		watermark:    base.Add(-time.Hour),
		hasWatermark: true,
	}
	r := newTestResolver(lg, ledger.NewSnapshotStore(), store)

	res, err := r.TopK(context.Background(), 10, models.TimeframeYear)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if res.Source != models.SourceRollup {
		t.Fatalf("source = %s, want %s", res.Source, models.SourceRollup)
	}
	assertEntries(t, res.Entries, []models.LeaderboardEntry{{VideoID: 1, Score: 3}})
}

func TestTopKRollupTierNeverMixesStaleSnapshot(t *testing.T) {
	snaps := ledger.NewSnapshotStore()
	publish(t, snaps, models.TimeframeDay, base.Add(-time.Hour),
		models.LeaderboardEntry{VideoID: 9, Score: 999},
	)
	store := &fakeStore{
		watermark:    base.Add(-time.Hour),
		hasWatermark: true,
		hourly:       map[int64]int64{1: 2},
	}
	r := newTestResolver(ledger.New(30*24*time.Hour), snaps, store)

	res, err := r.TopK(context.Background(), 10, models.TimeframeDay)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if res.Source != models.SourceRollup {
		t.Fatalf("source = %s, want %s", res.Source, models.SourceRollup)
	}
	for _, e := range res.Entries {
		if e.VideoID == 9 {
			t.Fatal("stale snapshot entry leaked into rollup-tier result")
		}
	}
}

func TestTopKAllTimeFromTotals(t *testing.T) {
	store := &fakeStore{totals: map[int64]int64{1: 100, 2: 50, 3: 75}}
	r := newTestResolver(ledger.New(30*24*time.Hour), ledger.NewSnapshotStore(), store)

	res, err := r.TopK(context.Background(), 2, models.TimeframeAllTime)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	want := []models.LeaderboardEntry{{VideoID: 1, Score: 100}, {VideoID: 3, Score: 75}}
	assertEntries(t, res.Entries, want)
}

func TestTopKRawScanWhenRollupsMissing(t *testing.T) {
	lg := ledger.New(30 * 24 * time.Hour)
	lg.Insert(1, "a", base.Add(-20*time.Minute))
	lg.Insert(1, "b", base.Add(-10*time.Minute))
	lg.Insert(2, "c", base.Add(-15*time.Minute))
	lg.Insert(3, "old", base.Add(-2*time.Hour))

	store := &fakeStore{hasWatermark: false}
	r := newTestResolver(lg, ledger.NewSnapshotStore(), store)

	res, err := r.TopK(context.Background(), 10, models.TimeframeHour)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if res.Source != models.SourceLedger {
		t.Fatalf("source = %s, want %s", res.Source, models.SourceLedger)
	}
	want := []models.LeaderboardEntry{{VideoID: 1, Score: 2}, {VideoID: 2, Score: 1}}
	assertEntries(t, res.Entries, want)
}

func TestTopKRawScanRateLimited(t *testing.T) {
	lg := ledger.New(30 * 24 * time.Hour)
	lg.Insert(1, "a", base.Add(-time.Minute))

	store := &fakeStore{failAll: true}
	cfg := testConfig()
	cfg.RawScanPerSec = 0.001
	cfg.RawScanBurst = 1
	r := New(lg, ledger.NewSnapshotStore(), store, cfg, 100, 5*time.Minute)
	r.now = func() time.Time { return base }

	// First query consumes the burst token and is served from the ledger.
	res, err := r.TopK(context.Background(), 10, models.TimeframeHour)
	if err != nil {
		t.Fatalf("first TopK: %v", err)
	}
	if res.Source != models.SourceLedger {
		t.Fatalf("first source = %s, want %s", res.Source, models.SourceLedger)
	}

	// Second query is rejected by the limiter and, with no snapshot to
	// degrade to, fails unavailable.
	if _, err := r.TopK(context.Background(), 10, models.TimeframeHour); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("second TopK: want ErrUnavailable, got %v", err)
	}
}

func TestTopKDegradesToStaleSnapshot(t *testing.T) {
	snaps := ledger.NewSnapshotStore()
	publish(t, snaps, models.TimeframeWeek, base.Add(-6*time.Hour),
		models.LeaderboardEntry{VideoID: 4, Score: 40},
	)
	store := &fakeStore{failAll: true}
	cfg := testConfig()
	cfg.RawScanPerSec = 0.001
	cfg.RawScanBurst = 1
	r := New(ledger.New(30*24*time.Hour), snaps, store, cfg, 100, 5*time.Minute)
	r.now = func() time.Time { return base }

	// Burn the raw-scan token.
	if _, err := r.TopK(context.Background(), 10, models.TimeframeWeek); err != nil {
		t.Fatalf("first TopK: %v", err)
	}

	res, err := r.TopK(context.Background(), 10, models.TimeframeWeek)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if res.Source != models.SourceStaleSnapshot {
		t.Fatalf("source = %s, want %s", res.Source, models.SourceStaleSnapshot)
	}
	if len(res.Entries) != 1 || res.Entries[0].VideoID != 4 {
		t.Fatalf("entries = %+v, want stale snapshot contents", res.Entries)
	}
}

func TestStatsValidation(t *testing.T) {
	r := newTestResolver(ledger.New(30*24*time.Hour), ledger.NewSnapshotStore(), &fakeStore{})
	for _, id := range []int64{0, -5} {
		if _, err := r.Stats(context.Background(), id); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Stats(%d): want ErrInvalidArgument, got %v", id, err)
		}
	}
}

func TestStatsWindowsFromLedger(t *testing.T) {
	lg := ledger.New(30 * 24 * time.Hour)
	lg.Insert(1, "e1", base.Add(-30*time.Minute))
	lg.Insert(1, "e2", base.Add(-3*time.Hour))
	lg.Insert(1, "e3", base.Add(-3*24*time.Hour))
	lg.Insert(1, "e4", base.Add(-20*24*time.Hour))

	r := newTestResolver(lg, ledger.NewSnapshotStore(), &fakeStore{})

	stats, err := r.Stats(context.Background(), 1)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalViews != 4 {
		t.Errorf("TotalViews = %d, want 4", stats.TotalViews)
	}
	assertWindow(t, "LastHour", stats.LastHour, 1)
	assertWindow(t, "LastDay", stats.LastDay, 2)
	assertWindow(t, "LastWeek", stats.LastWeek, 3)
	assertWindow(t, "LastMonth", stats.LastMonth, 4)
	if stats.Source != models.SourceLedger {
		t.Errorf("Source = %s, want %s", stats.Source, models.SourceLedger)
	}
}

func TestStatsTotalSurvivesEviction(t *testing.T) {
	lg := ledger.New(30 * 24 * time.Hour)
	lg.Insert(1, "e1", base.Add(-40*24*time.Hour))
	lg.Insert(1, "e2", base.Add(-time.Minute))
	lg.EvictAllBefore(base.Add(-30 * 24 * time.Hour))

	r := newTestResolver(lg, ledger.NewSnapshotStore(), &fakeStore{})

	stats, err := r.Stats(context.Background(), 1)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalViews != 2 {
		t.Errorf("TotalViews = %d, want 2 (eviction must not shrink totals)", stats.TotalViews)
	}
	assertWindow(t, "LastMonth", stats.LastMonth, 1)
}

func TestStatsStitchesRollupsPastHorizon(t *testing.T) {
	// Short retention so the month window reaches past the horizon.
	lg := ledger.New(7 * 24 * time.Hour)
	lg.Insert(1, "recent", base.Add(-time.Hour))

	store := &fakeStore{
		hasHistory: true,
		hourly:     map[int64]int64{1: 12},
	}
	r := newTestResolver(lg, ledger.NewSnapshotStore(), store)

	stats, err := r.Stats(context.Background(), 1)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	assertWindow(t, "LastWeek", stats.LastWeek, 1)
	// Month = 12 rolled up before the horizon + 1 in the ledger tail.
	assertWindow(t, "LastMonth", stats.LastMonth, 13)
	if stats.Source != models.SourceRollup {
		t.Errorf("Source = %s, want %s", stats.Source, models.SourceRollup)
	}
}

func TestStatsNilWindowOnDataLoss(t *testing.T) {
	lg := ledger.New(7 * 24 * time.Hour)
	lg.Insert(1, "recent", base.Add(-time.Hour))

	// No rollups exist before the horizon: month cannot be answered.
	store := &fakeStore{hasHistory: false}
	r := newTestResolver(lg, ledger.NewSnapshotStore(), store)

	stats, err := r.Stats(context.Background(), 1)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	assertWindow(t, "LastHour", stats.LastHour, 1)
	assertWindow(t, "LastWeek", stats.LastWeek, 1)
	if stats.LastMonth != nil {
		t.Errorf("LastMonth = %d, want nil for unanswerable range", *stats.LastMonth)
	}
}

func assertEntries(t *testing.T, got, want []models.LeaderboardEntry) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("entries = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i].VideoID != want[i].VideoID || got[i].Score != want[i].Score {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func assertWindow(t *testing.T, name string, got *int64, want int64) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s = nil, want %d", name, want)
	}
	if *got != want {
		t.Fatalf("%s = %d, want %d", name, *got, want)
	}
}
