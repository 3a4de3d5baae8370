// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/watchrank/watchrank/internal/config"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	cfg := &config.DedupConfig{
		Path:       t.TempDir(),
		TTL:        time.Hour,
		WindowSize: 16,
		InMemory:   true,
	}
	store, err := OpenStore(cfg)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestWindowRecordAndContains(t *testing.T) {
	w := NewWindow(4, 0)

	if w.Contains("a") {
		t.Error("empty window should not contain anything")
	}
	w.Record("a")
	if !w.Contains("a") {
		t.Error("recorded key missing")
	}
}

func TestWindowEvictsLRU(t *testing.T) {
	w := NewWindow(3, 0)
	for _, k := range []string{"a", "b", "c"} {
		w.Record(k)
	}
	// Touch "a" so "b" becomes least recent.
	w.Record("a")
	w.Record("d")

	if w.Contains("b") {
		t.Error("least recently seen key should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if !w.Contains(k) {
			t.Errorf("key %q should survive eviction", k)
		}
	}
}

func TestWindowTTLExpiry(t *testing.T) {
	w := NewWindow(10, 20*time.Millisecond)
	w.Record("a")
	if !w.Contains("a") {
		t.Fatal("fresh key missing")
	}
	time.Sleep(40 * time.Millisecond)
	if w.Contains("a") {
		t.Error("expired key should be gone")
	}
	w.Record("b")
	time.Sleep(40 * time.Millisecond)
	if removed := w.CleanupExpired(); removed != 1 {
		t.Errorf("CleanupExpired removed %d, want 1", removed)
	}
}

func TestStoreSeenMark(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	seen, err := store.Seen(ctx, "e1")
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if seen {
		t.Error("unmarked key reported seen")
	}

	if err := store.Mark(ctx, "e1"); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	seen, err = store.Seen(ctx, "e1")
	if err != nil {
		t.Fatalf("Seen after mark: %v", err)
	}
	if !seen {
		t.Error("marked key not reported seen")
	}
}

func TestDeduperSuppressesReplays(t *testing.T) {
	store := testStore(t)
	d := New(store, &config.DedupConfig{WindowSize: 8, TTL: time.Hour})
	ctx := context.Background()

	dup, err := d.IsDuplicate(ctx, "e1")
	if err != nil || dup {
		t.Fatalf("fresh key: dup=%v err=%v", dup, err)
	}
	if err := d.Record(ctx, "e1"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	for i := 0; i < 5; i++ {
		dup, err := d.IsDuplicate(ctx, "e1")
		if err != nil {
			t.Fatalf("IsDuplicate: %v", err)
		}
		if !dup {
			t.Fatal("replay not suppressed")
		}
	}
}

// A window miss must still hit the persistent index, which is what covers
// replays arriving after a restart or after window eviction.
func TestDeduperFallsBackToStore(t *testing.T) {
	store := testStore(t)
	d := New(store, &config.DedupConfig{WindowSize: 2, TTL: time.Hour})
	ctx := context.Background()

	if err := d.Record(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	// Push "old" out of the tiny window.
	for i := 0; i < 4; i++ {
		if err := d.Record(ctx, fmt.Sprintf("filler-%d", i)); err != nil {
			t.Fatal(err)
		}
	}
	if d.window.Contains("old") {
		t.Fatal("expected window eviction")
	}

	dup, err := d.IsDuplicate(ctx, "old")
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup {
		t.Error("persistent index should still suppress the replay")
	}
}

func TestLeaseSingleHolder(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	a := NewLeases(store, "owner-a", time.Minute)
	b := NewLeases(store, "owner-b", time.Minute)

	got, err := a.Acquire(ctx, "rollup")
	if err != nil || !got {
		t.Fatalf("first acquire: got=%v err=%v", got, err)
	}

	got, err = b.Acquire(ctx, "rollup")
	if err != nil {
		t.Fatalf("contending acquire: %v", err)
	}
	if got {
		t.Error("second owner must not acquire a held lease")
	}

	// Renewal by the holder succeeds.
	got, err = a.Acquire(ctx, "rollup")
	if err != nil || !got {
		t.Errorf("renewal: got=%v err=%v", got, err)
	}

	if err := a.Release(ctx, "rollup"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	got, err = b.Acquire(ctx, "rollup")
	if err != nil || !got {
		t.Errorf("acquire after release: got=%v err=%v", got, err)
	}
}

func TestLeaseExpires(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	a := NewLeases(store, "owner-a", 20*time.Millisecond)
	b := NewLeases(store, "owner-b", time.Minute)

	if got, _ := a.Acquire(ctx, "job"); !got {
		t.Fatal("initial acquire failed")
	}
	time.Sleep(40 * time.Millisecond)

	got, err := b.Acquire(ctx, "job")
	if err != nil || !got {
		t.Errorf("expired lease should be acquirable: got=%v err=%v", got, err)
	}
}
