// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package dedup

import (
	"context"

	"github.com/watchrank/watchrank/internal/config"
)

// Deduper layers the in-memory window over the persistent index. The window
// absorbs the hot path; the index is consulted only on window misses and is
// what makes suppression survive restarts.
type Deduper struct {
	window *Window
	store  *Store
}

// New builds a deduper over an already opened store.
func New(store *Store, cfg *config.DedupConfig) *Deduper {
	return &Deduper{
		window: NewWindow(cfg.WindowSize, cfg.TTL),
		store:  store,
	}
}

// IsDuplicate reports whether the identity was already accepted.
func (d *Deduper) IsDuplicate(ctx context.Context, key string) (bool, error) {
	if d.window.Contains(key) {
		return true, nil
	}
	seen, err := d.store.Seen(ctx, key)
	if err != nil {
		return false, err
	}
	if seen {
		// Promote so subsequent redeliveries stay in memory.
		d.window.Record(key)
	}
	return seen, nil
}

// Record marks the identity as accepted in both layers. The durable mark is
// written first; if it fails the window is left untouched so a retry
// re-attempts the durable write.
func (d *Deduper) Record(ctx context.Context, key string) error {
	if err := d.store.Mark(ctx, key); err != nil {
		return err
	}
	d.window.Record(key)
	return nil
}

// WindowStats exposes the in-memory layer's hit counters.
func (d *Deduper) WindowStats() (hits, misses uint64) {
	return d.window.Stats()
}
