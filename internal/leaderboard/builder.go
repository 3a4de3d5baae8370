// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

// Package leaderboard builds ranked snapshots for every timeframe on a
// fixed cadence. Each build computes a complete ranking off to the side and
// publishes it with an atomic swap, so queries never see a half-built
// generation. The builder also owns the retention sweep that trims the
// ledger back to its horizon.
package leaderboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/watchrank/watchrank/internal/config"
	"github.com/watchrank/watchrank/internal/dedup"
	"github.com/watchrank/watchrank/internal/ledger"
	"github.com/watchrank/watchrank/internal/logging"
	"github.com/watchrank/watchrank/internal/metrics"
	"github.com/watchrank/watchrank/internal/models"
)

const leaseName = "leaderboard"

// Store supplies pre-aggregated counts for windows reaching past the
// ledger's retention horizon.
type Store interface {
	RollupCountsByVideo(ctx context.Context, g models.Granularity, from, to time.Time) (map[int64]int64, error)
}

// Builder periodically materializes leaderboard snapshots.
type Builder struct {
	ledger    *ledger.Ledger
	snapshots *ledger.SnapshotStore
	store     Store
	leases    *dedup.Leases
	cfg       config.LeaderboardConfig
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates the builder. leases may be nil in tests.
func New(lg *ledger.Ledger, snapshots *ledger.SnapshotStore, store Store, leases *dedup.Leases, cfg config.LeaderboardConfig) *Builder {
	return &Builder{
		ledger:    lg,
		snapshots: snapshots,
		store:     store,
		leases:    leases,
		cfg:       cfg,
		logger:    logging.With("leaderboard"),
		now:       time.Now,
	}
}

func (b *Builder) String() string { return "leaderboard-builder" }

// Serve builds immediately, then on every tick, until the context is
// canceled.
func (b *Builder) Serve(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	b.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

func (b *Builder) tick(ctx context.Context) {
	if b.leases != nil {
		ok, err := b.leases.Acquire(ctx, leaseName)
		if err != nil {
			b.logger.Error().Err(err).Msg("Lease acquisition failed")
			return
		}
		if !ok {
			b.logger.Debug().Msg("Leaderboard lease held elsewhere, skipping pass")
			return
		}
	}
	b.BuildAll(ctx)
}

// BuildAll rebuilds every timeframe's snapshot, then sweeps entries past the
// retention horizon out of the ledger. One failed timeframe keeps its
// previous snapshot live; the others still publish.
func (b *Builder) BuildAll(ctx context.Context) {
	now := b.now().UTC()
	for _, tf := range models.Timeframes {
		start := time.Now()
		err := b.Build(ctx, tf, now)
		metrics.RecordLeaderboardBuild(string(tf), time.Since(start), err)
		if err != nil {
			b.logger.Error().Err(err).Str("timeframe", string(tf)).Msg("Snapshot build failed, keeping previous generation")
		}
	}

	if removed := b.ledger.EvictAllBefore(now.Add(-b.ledger.Retention())); removed > 0 {
		b.logger.Info().Int("removed", removed).Msg("Swept entries past retention horizon")
	}
	b.reportSnapshotAges(now)
}

// Build materializes and publishes one timeframe's snapshot.
func (b *Builder) Build(ctx context.Context, tf models.Timeframe, now time.Time) error {
	counts, err := b.scores(ctx, tf, now)
	if err != nil {
		return err
	}

	snap := &models.LeaderboardSnapshot{
		Timeframe: tf,
		Entries:   SelectTop(counts, b.cfg.TopK),
		BuiltAt:   now,
		Version:   b.snapshots.NextVersion(),
	}
	b.snapshots.Publish(snap)

	b.logger.Debug().
		Str("timeframe", string(tf)).
		Int("entries", len(snap.Entries)).
		Uint64("version", snap.Version).
		Msg("Published snapshot")
	return nil
}

// scores computes the per-video view counts for a timeframe. Windows inside
// the retention horizon come straight from the ledger; longer windows stitch
// daily rollups onto the ledger-resident tail.
func (b *Builder) scores(ctx context.Context, tf models.Timeframe, now time.Time) (map[int64]int64, error) {
	counts := make(map[int64]int64)

	window, bounded := tf.Window()
	if !bounded {
		for _, videoID := range b.ledger.VideoIDs() {
			if total := b.ledger.TotalViews(videoID); total > 0 {
				counts[videoID] = total
			}
		}
		return counts, nil
	}

	from := now.Add(-window)
	horizon := now.Add(-b.ledger.Retention())

	if from.Before(horizon) {
		// Each source stops at its own bucket boundary so no range is
		// counted twice: daily buckets cover [from, dayEdge), hourly
		// buckets bridge [dayEdge, seam), and the ledger takes over at
		// seam, the first hour boundary at or after the horizon.
		dayEdge := horizon.Truncate(24 * time.Hour)
		seam := horizon.Truncate(time.Hour)
		if seam.Before(horizon) {
			seam = seam.Add(time.Hour)
		}

		if from.Before(dayEdge) {
			rolled, err := b.store.RollupCountsByVideo(ctx, models.GranularityDay, from, dayEdge)
			if err != nil {
				return nil, err
			}
			for videoID, n := range rolled {
				counts[videoID] += n
			}
		}

		hourFrom := dayEdge
		if from.After(dayEdge) {
			hourFrom = from
		}
		if hourFrom.Before(seam) {
			rolled, err := b.store.RollupCountsByVideo(ctx, models.GranularityHour, hourFrom, seam)
			if err != nil {
				return nil, err
			}
			for videoID, n := range rolled {
				counts[videoID] += n
			}
		}
		from = seam
	}

	for _, videoID := range b.ledger.VideoIDs() {
		if n := b.ledger.RangeCount(videoID, from, now); n > 0 {
			counts[videoID] += n
		}
	}
	return counts, nil
}

func (b *Builder) reportSnapshotAges(now time.Time) {
	for _, tf := range models.Timeframes {
		if snap := b.snapshots.Live(tf); snap != nil {
			metrics.LeaderboardSnapshotAge.WithLabelValues(string(tf)).Set(snap.Age(now).Seconds())
		}
	}
}
