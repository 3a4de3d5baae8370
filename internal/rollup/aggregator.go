// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

// Package rollup periodically folds raw views into hourly and daily
// aggregates. Buckets are recomputed idempotently and a durable watermark
// records progress, so crashed or overlapping runs converge on the same
// state.
package rollup

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/watchrank/watchrank/internal/config"
	"github.com/watchrank/watchrank/internal/dedup"
	"github.com/watchrank/watchrank/internal/logging"
	"github.com/watchrank/watchrank/internal/metrics"
)

// leaseName guards against concurrent rollup passes.
const leaseName = "rollup"

// Store is the durable surface the aggregator drives.
type Store interface {
	Watermark(ctx context.Context) (time.Time, bool, error)
	CountViewsByVideo(ctx context.Context, from, to time.Time) (map[int64]int64, error)
	UpsertHourlyBucket(ctx context.Context, bucketStart time.Time, counts map[int64]int64) error
	UpsertDailyBucket(ctx context.Context, dayStart time.Time) error
	CleanupHourlyBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Aggregator is the periodic rollup job.
type Aggregator struct {
	store  Store
	leases *dedup.Leases
	cfg    config.RollupConfig
	logger zerolog.Logger
	now    func() time.Time

	lastCleanup time.Time
}

// New creates the aggregator. leases may be nil in tests.
func New(store Store, leases *dedup.Leases, cfg config.RollupConfig) *Aggregator {
	return &Aggregator{
		store:  store,
		leases: leases,
		cfg:    cfg,
		logger: logging.With("rollup"),
		now:    time.Now,
	}
}

func (a *Aggregator) String() string { return "rollup-aggregator" }

// Serve runs the aggregation loop until the context is canceled.
func (a *Aggregator) Serve(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Aggregator) tick(ctx context.Context) {
	if a.leases != nil {
		ok, err := a.leases.Acquire(ctx, leaseName)
		if err != nil {
			a.logger.Error().Err(err).Msg("Lease acquisition failed")
			return
		}
		if !ok {
			a.logger.Debug().Msg("Rollup lease held elsewhere, skipping pass")
			return
		}
	}

	start := time.Now()
	if err := a.RunOnce(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Rollup pass failed")
	}
	metrics.RollupRunDuration.Observe(time.Since(start).Seconds())

	a.maybeCleanup(ctx)
}

// RunOnce aggregates every complete hour between the watermark and the safe
// cutoff. A bucket that keeps failing stops the pass without advancing the
// watermark; the next pass retries the same bucket, and the upserts make
// the retry harmless.
func (a *Aggregator) RunOnce(ctx context.Context) error {
	now := a.now().UTC()
	safe := now.Add(-a.cfg.SafetyLag).Truncate(time.Hour)

	wm, ok, err := a.store.Watermark(ctx)
	if err != nil {
		return err
	}
	if !ok {
		// First run: backfill the most recent day and let older raw
		// views be served directly until they age out.
		wm = safe.Add(-24 * time.Hour)
		a.logger.Info().Time("start", wm).Msg("No watermark, starting initial backfill")
	}

	for bucket := wm; !bucket.Add(time.Hour).After(safe); bucket = bucket.Add(time.Hour) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.aggregateHour(ctx, bucket); err != nil {
			metrics.RecordRollupBucket("hour", err)
			a.logger.Error().Err(err).Time("bucket", bucket).Msg("Hourly bucket failed, will retry next pass")
			return err
		}
		metrics.RecordRollupBucket("hour", nil)

		// A completed hour ending at midnight closes out the previous
		// day; derive its daily bucket.
		end := bucket.Add(time.Hour)
		if end.Hour() == 0 {
			day := end.Add(-24 * time.Hour)
			if err := a.store.UpsertDailyBucket(ctx, day); err != nil {
				metrics.RecordRollupBucket("day", err)
				a.logger.Error().Err(err).Time("day", day).Msg("Daily bucket failed")
			} else {
				metrics.RecordRollupBucket("day", nil)
			}
		}
		metrics.RollupWatermarkAge.Set(now.Sub(end).Seconds())
	}
	return nil
}

func (a *Aggregator) aggregateHour(ctx context.Context, bucket time.Time) error {
	var lastErr error
	for attempt := 0; attempt <= a.cfg.BucketRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}

		counts, err := a.store.CountViewsByVideo(ctx, bucket, bucket.Add(time.Hour))
		if err != nil {
			lastErr = err
			continue
		}
		if err := a.store.UpsertHourlyBucket(ctx, bucket, counts); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (a *Aggregator) maybeCleanup(ctx context.Context) {
	now := a.now().UTC()
	if now.Sub(a.lastCleanup) < a.cfg.CleanupInterval {
		return
	}
	a.lastCleanup = now

	cutoff := now.Add(-time.Duration(a.cfg.RetentionDays) * 24 * time.Hour)
	removed, err := a.store.CleanupHourlyBefore(ctx, cutoff)
	if err != nil {
		a.logger.Error().Err(err).Msg("Rollup cleanup failed")
		return
	}
	if removed > 0 {
		a.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("Dropped aged hourly rollups")
	}
}
