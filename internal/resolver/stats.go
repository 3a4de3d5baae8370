// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/watchrank/watchrank/internal/metrics"
	"github.com/watchrank/watchrank/internal/models"
)

// statsWindows are the sliding ranges reported per video, smallest first.
var statsWindows = []models.Timeframe{
	models.TimeframeHour,
	models.TimeframeDay,
	models.TimeframeWeek,
	models.TimeframeMonth,
}

// Stats resolves the analytics overlay for one video. The all-time total
// always comes from the ledger's monotonic counters; each window count is
// served from the ledger when the window fits inside the retention horizon,
// and stitched from rollups plus the ledger tail when it does not. A window
// whose backing data no longer exists is reported as nil rather than zero.
func (r *Resolver) Stats(ctx context.Context, videoID int64) (*models.VideoStats, error) {
	start := time.Now()
	if videoID <= 0 {
		return nil, fmt.Errorf("%w: video id must be positive", ErrInvalidArgument)
	}

	now := r.now().UTC()
	stats := &models.VideoStats{
		VideoID:    videoID,
		TotalViews: r.ledger.TotalViews(videoID),
		Source:     models.SourceLedger,
	}

	for _, tf := range statsWindows {
		window, _ := tf.Window()
		n, source, err := r.windowCount(ctx, videoID, window, now)
		if err != nil {
			r.logger.Warn().Err(err).
				Int64("video_id", videoID).
				Str("window", string(tf)).
				Msg("Window count unavailable")
			continue
		}
		if source == models.SourceRollup {
			stats.Source = models.SourceRollup
		}
		switch tf {
		case models.TimeframeHour:
			stats.LastHour = &n
		case models.TimeframeDay:
			stats.LastDay = &n
		case models.TimeframeWeek:
			stats.LastWeek = &n
		case models.TimeframeMonth:
			stats.LastMonth = &n
		}
	}

	metrics.RecordResolverQuery("stats", string(stats.Source), time.Since(start))
	return stats, nil
}

// windowCount counts views for one video in [now-window, now). Ranges that
// reach past the in-memory horizon are completed from hourly rollups; if the
// pre-horizon portion was never aggregated the count would undercount
// silently, so ErrDataLoss is returned instead.
func (r *Resolver) windowCount(ctx context.Context, videoID int64, window time.Duration, now time.Time) (int64, models.QuerySource, error) {
	from := now.Add(-window)
	horizon := now.Add(-r.ledger.Retention())

	if !from.Before(horizon) {
		return r.ledger.RangeCount(videoID, from, now), models.SourceLedger, nil
	}

	ok, err := r.store.HasRollupsBefore(ctx, horizon)
	if err != nil {
		return 0, "", err
	}
	if !ok {
		return 0, "", fmt.Errorf("%w: no aggregates before %s", ErrDataLoss, horizon.Format(time.RFC3339))
	}

	rolled, err := r.store.SumRollups(ctx, models.GranularityHour, videoID, from, horizon)
	if err != nil {
		return 0, "", err
	}
	tail := r.ledger.RangeCount(videoID, horizon, now)
	return rolled + tail, models.SourceRollup, nil
}
