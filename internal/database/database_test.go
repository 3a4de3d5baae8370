// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/watchrank/watchrank/internal/config"
	"github.com/watchrank/watchrank/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
		MemoryLimit:     "256MB",
		Threads:         2,
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mkEvent(id string, videoID int64, at time.Time) *models.ViewEvent {
	return &models.ViewEvent{
		EventID:   id,
		VideoID:   videoID,
		ViewerID:  "viewer-1",
		Timestamp: float64(at.UnixNano()) / float64(time.Second),
	}
}

func TestInsertViewIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	ev := mkEvent("e1", 1, at)
	inserted, err := db.InsertView(ctx, ev)
	if err != nil {
		t.Fatalf("InsertView: %v", err)
	}
	if !inserted {
		t.Fatal("first insert should report inserted")
	}

	// Redelivery of the same event.
	for i := 0; i < 3; i++ {
		inserted, err = db.InsertView(ctx, ev)
		if err != nil {
			t.Fatalf("redelivered InsertView: %v", err)
		}
		if inserted {
			t.Fatal("duplicate insert should report not inserted")
		}
	}

	total, err := db.TotalViews(ctx, 1)
	if err != nil {
		t.Fatalf("TotalViews: %v", err)
	}
	if total != 1 {
		t.Errorf("total after redeliveries = %d, want 1", total)
	}

	n, err := db.CountViews(ctx, 1, at.Add(-time.Minute), at.Add(time.Minute))
	if err != nil {
		t.Fatalf("CountViews: %v", err)
	}
	if n != 1 {
		t.Errorf("raw count = %d, want 1", n)
	}
}

func TestCountViewsByVideo(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i, videoID := range []int64{1, 1, 2} {
		ev := mkEvent(string(rune('a'+i)), videoID, at.Add(time.Duration(i)*time.Second))
		if _, err := db.InsertView(ctx, ev); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	counts, err := db.CountViewsByVideo(ctx, at, at.Add(time.Minute))
	if err != nil {
		t.Fatalf("CountViewsByVideo: %v", err)
	}
	if counts[1] != 2 || counts[2] != 1 {
		t.Errorf("counts = %v, want video1=2 video2=1", counts)
	}
}

func TestHourlyRollupIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	bucket := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	counts := map[int64]int64{1: 5, 2: 3}
	for i := 0; i < 2; i++ {
		if err := db.UpsertHourlyBucket(ctx, bucket, counts); err != nil {
			t.Fatalf("UpsertHourlyBucket run %d: %v", i, err)
		}
	}

	n, err := db.SumRollups(ctx, models.GranularityHour, 1, bucket, bucket.Add(time.Hour))
	if err != nil {
		t.Fatalf("SumRollups: %v", err)
	}
	if n != 5 {
		t.Errorf("hourly sum after rerun = %d, want 5", n)
	}

	wm, ok, err := db.Watermark(ctx)
	if err != nil || !ok {
		t.Fatalf("Watermark: ok=%v err=%v", ok, err)
	}
	if !wm.Equal(bucket.Add(time.Hour)) {
		t.Errorf("watermark = %v, want %v", wm, bucket.Add(time.Hour))
	}
}

func TestDailyDerivedFromHourly(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for h := 0; h < 3; h++ {
		bucket := day.Add(time.Duration(h) * time.Hour)
		if err := db.UpsertHourlyBucket(ctx, bucket, map[int64]int64{7: 10}); err != nil {
			t.Fatalf("hourly: %v", err)
		}
	}
	if err := db.UpsertDailyBucket(ctx, day); err != nil {
		t.Fatalf("UpsertDailyBucket: %v", err)
	}

	n, err := db.SumRollups(ctx, models.GranularityDay, 7, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("SumRollups daily: %v", err)
	}
	if n != 30 {
		t.Errorf("daily sum = %d, want 30", n)
	}
}

func TestRebuildTotalsFromViews(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		ev := mkEvent(string(rune('a'+i)), 9, at.Add(time.Duration(i)*time.Second))
		if _, err := db.InsertView(ctx, ev); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	totals, err := db.RebuildTotalsFromViews(ctx)
	if err != nil {
		t.Fatalf("RebuildTotalsFromViews: %v", err)
	}
	if totals[9] != 4 {
		t.Errorf("rebuilt total = %d, want 4", totals[9])
	}
}

func TestStreamViewsSince(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ev := mkEvent(string(rune('a'+i)), 5, at.Add(time.Duration(i)*time.Hour))
		if _, err := db.InsertView(ctx, ev); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	var seen []RecentView
	err := db.StreamViewsSince(ctx, at.Add(30*time.Minute), func(v RecentView) error {
		seen = append(seen, v)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamViewsSince: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("streamed %d rows, want 2", len(seen))
	}
	if seen[0].ViewedAt.After(seen[1].ViewedAt) {
		t.Error("rows not in ascending time order")
	}
}
