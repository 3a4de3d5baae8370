// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

// Package resolver answers analytics queries through a tiered fallback
// chain: a fresh leaderboard snapshot first, pre-aggregated rollups second,
// and a rate-limited raw ledger scan last, degrading to a stale snapshot
// before admitting defeat. A response always comes from exactly one tier;
// tiers are never mixed within a single result.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/watchrank/watchrank/internal/config"
	"github.com/watchrank/watchrank/internal/leaderboard"
	"github.com/watchrank/watchrank/internal/ledger"
	"github.com/watchrank/watchrank/internal/logging"
	"github.com/watchrank/watchrank/internal/metrics"
	"github.com/watchrank/watchrank/internal/models"
)

// Sentinel errors surfaced to the API layer.
var (
	// ErrInvalidArgument marks a request the caller must fix.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnavailable means every tier failed and no stale snapshot exists.
	ErrUnavailable = errors.New("analytics temporarily unavailable")
	// ErrDataLoss means a queried range predates all surviving data.
	ErrDataLoss = errors.New("historical data unavailable")
)

// Store is the durable read surface the resolver falls back to.
type Store interface {
	Watermark(ctx context.Context) (time.Time, bool, error)
	RollupCountsByVideo(ctx context.Context, g models.Granularity, from, to time.Time) (map[int64]int64, error)
	SumRollups(ctx context.Context, g models.Granularity, videoID int64, from, to time.Time) (int64, error)
	HasRollupsBefore(ctx context.Context, cutoff time.Time) (bool, error)
	AllTotals(ctx context.Context) (map[int64]int64, error)
}

// TopResult is one resolved ranking query.
type TopResult struct {
	Timeframe models.Timeframe          `json:"timeframe"`
	Entries   []models.LeaderboardEntry `json:"entries"`
	Source    models.QuerySource        `json:"source"`
	BuiltAt   time.Time                 `json:"built_at"`
}

// Resolver resolves ranking and per-video stats queries.
type Resolver struct {
	ledger    *ledger.Ledger
	snapshots *ledger.SnapshotStore
	store     Store
	cfg       config.ResolverConfig
	maxK      int
	builderIv time.Duration
	limiter   *rate.Limiter
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates the resolver. builderInterval is the leaderboard cadence used
// to judge snapshot freshness.
func New(lg *ledger.Ledger, snapshots *ledger.SnapshotStore, store Store, cfg config.ResolverConfig, maxK int, builderInterval time.Duration) *Resolver {
	return &Resolver{
		ledger:    lg,
		snapshots: snapshots,
		store:     store,
		cfg:       cfg,
		maxK:      maxK,
		builderIv: builderInterval,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RawScanPerSec), cfg.RawScanBurst),
		logger:    logging.With("resolver"),
		now:       time.Now,
	}
}

// TopK resolves the top-k ranking for a timeframe.
func (r *Resolver) TopK(ctx context.Context, k int, tf models.Timeframe) (*TopResult, error) {
	start := time.Now()
	if k <= 0 || k > r.maxK {
		return nil, fmt.Errorf("%w: k must be between 1 and %d", ErrInvalidArgument, r.maxK)
	}
	if !tf.Valid() {
		return nil, fmt.Errorf("%w: unknown timeframe %q", ErrInvalidArgument, tf)
	}

	now := r.now().UTC()

	// Tier 1: fresh snapshot.
	maxAge := time.Duration(r.cfg.FreshnessFactor * float64(r.builderIv))
	if snap := r.snapshots.Fresh(tf, now, maxAge); snap != nil {
		metrics.RecordResolverQuery("top", string(models.SourceSnapshot), time.Since(start))
		return &TopResult{Timeframe: tf, Entries: snap.Top(k), Source: models.SourceSnapshot, BuiltAt: snap.BuiltAt}, nil
	}

	// Tier 2: rollups plus the unaggregated ledger tail.
	if res, err := r.rollupRank(ctx, k, tf, now); err == nil {
		metrics.RecordResolverQuery("top", string(models.SourceRollup), time.Since(start))
		return res, nil
	} else {
		r.logger.Warn().Err(err).Str("timeframe", string(tf)).Msg("Rollup tier failed, trying raw scan")
	}

	// Tier 3: guarded raw scan.
	res, err := r.rawScanRank(ctx, k, tf, now)
	if err == nil {
		metrics.RecordResolverQuery("top", string(models.SourceLedger), time.Since(start))
		return res, nil
	}
	r.logger.Warn().Err(err).Str("timeframe", string(tf)).Msg("Raw scan unavailable, degrading")

	// Last resort: any snapshot, however old.
	if snap := r.snapshots.Stale(tf); snap != nil {
		metrics.RecordResolverQuery("top", string(models.SourceStaleSnapshot), time.Since(start))
		return &TopResult{Timeframe: tf, Entries: snap.Top(k), Source: models.SourceStaleSnapshot, BuiltAt: snap.BuiltAt}, nil
	}

	metrics.RecordResolverQuery("top", "error", time.Since(start))
	return nil, ErrUnavailable
}

// rollupRank computes a complete ranking from durable aggregates, extended
// by the ledger tail past the rollup watermark.
func (r *Resolver) rollupRank(ctx context.Context, k int, tf models.Timeframe, now time.Time) (*TopResult, error) {
	window, bounded := tf.Window()
	if !bounded {
		totals, err := r.store.AllTotals(ctx)
		if err != nil {
			return nil, err
		}
		return &TopResult{Timeframe: tf, Entries: leaderboard.SelectTop(totals, k), Source: models.SourceRollup, BuiltAt: now}, nil
	}

	wm, ok, err := r.store.Watermark(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("no rollups yet")
	}

	from := now.Add(-window)
	counts := make(map[int64]int64)

	// Long windows read the daily table, which only holds complete days.
	// The handoff to the ledger tail then moves back from the hourly
	// watermark to the last day boundary so the partial day is not lost.
	g := models.GranularityHour
	rollupEnd := wm
	if window >= 60*24*time.Hour {
		g = models.GranularityDay
		rollupEnd = wm.Truncate(24 * time.Hour)
	}

	if from.Before(rollupEnd) {
		rolled, err := r.store.RollupCountsByVideo(ctx, g, from, rollupEnd)
		if err != nil {
			return nil, err
		}
		for videoID, n := range rolled {
			counts[videoID] += n
		}
	}

	tailFrom := rollupEnd
	if from.After(rollupEnd) {
		tailFrom = from
	}
	for _, videoID := range r.ledger.VideoIDs() {
		if n := r.ledger.RangeCount(videoID, tailFrom, now); n > 0 {
			counts[videoID] += n
		}
	}

	return &TopResult{Timeframe: tf, Entries: leaderboard.SelectTop(counts, k), Source: models.SourceRollup, BuiltAt: now}, nil
}

// rawScanRank walks every per-video timeline under a timeout and a global
// rate limit. Expensive, so it only runs when the cheaper tiers are gone.
func (r *Resolver) rawScanRank(ctx context.Context, k int, tf models.Timeframe, now time.Time) (*TopResult, error) {
	if !r.limiter.Allow() {
		metrics.ResolverRawScanRejected.Inc()
		return nil, errors.New("raw scan rate limit exceeded")
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RawScanTimeout)
	defer cancel()

	window, bounded := tf.Window()
	from := time.Time{}
	if bounded {
		from = now.Add(-window)
	}

	counts := make(map[int64]int64)
	for _, videoID := range r.ledger.VideoIDs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var n int64
		if bounded {
			n = r.ledger.RangeCount(videoID, from, now)
		} else {
			n = r.ledger.TotalViews(videoID)
		}
		if n > 0 {
			counts[videoID] = n
		}
	}

	return &TopResult{Timeframe: tf, Entries: leaderboard.SelectTop(counts, k), Source: models.SourceLedger, BuiltAt: now}, nil
}

