// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/watchrank/watchrank/internal/database"
	"github.com/watchrank/watchrank/internal/ledger"
	"github.com/watchrank/watchrank/internal/logging"
)

// recoverLedger rebuilds the in-memory ledger from the durable store: the
// monotonic per-video totals first, then every view inside the retention
// horizon replayed into the timelines. Totals drive all-time rankings, so a
// missing or torn totals table falls back to a full recount of the views
// table rather than starting from zero.
func recoverLedger(ctx context.Context, db *database.DB, lg *ledger.Ledger) error {
	start := time.Now()

	totals, err := db.AllTotals(ctx)
	if err != nil {
		return fmt.Errorf("load totals: %w", err)
	}
	if len(totals) == 0 {
		rebuilt, err := db.RebuildTotalsFromViews(ctx)
		if err != nil {
			return fmt.Errorf("rebuild totals: %w", err)
		}
		totals = rebuilt
		if len(rebuilt) > 0 {
			logging.Warn().Int("videos", len(rebuilt)).Msg("Totals table empty, recounted from views")
		}
	}
	for videoID, total := range totals {
		lg.SetTotal(videoID, total)
	}

	since := time.Now().UTC().Add(-lg.Retention())
	var replayed int64
	err = db.StreamViewsSince(ctx, since, func(v database.RecentView) error {
		if lg.Insert(v.VideoID, v.EventID, v.ViewedAt) {
			replayed++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replay views: %w", err)
	}

	logging.Info().
		Int("videos", len(totals)).
		Int64("views_replayed", replayed).
		Dur("took", time.Since(start)).
		Msg("Ledger recovered from durable store")
	return nil
}
