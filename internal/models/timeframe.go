// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package models

import (
	"fmt"
	"time"
)

// Timeframe selects the sliding window a ranking or count is computed over.
// All windows are anchored at query time and extend backwards.
type Timeframe string

const (
	TimeframeHour    Timeframe = "hour"
	TimeframeDay     Timeframe = "day"
	TimeframeWeek    Timeframe = "week"
	TimeframeMonth   Timeframe = "month"
	TimeframeYear    Timeframe = "year"
	TimeframeAllTime Timeframe = "all_time"
)

// Timeframes lists every supported timeframe in ascending window order.
var Timeframes = []Timeframe{
	TimeframeHour,
	TimeframeDay,
	TimeframeWeek,
	TimeframeMonth,
	TimeframeYear,
	TimeframeAllTime,
}

// Window durations. Month and year use fixed civil approximations rather
// than calendar arithmetic so that window boundaries are stable under
// repeated evaluation.
const (
	windowHour  = time.Hour
	windowDay   = 24 * time.Hour
	windowWeek  = 7 * windowDay
	windowMonth = 30 * windowDay
	windowYear  = 365 * windowDay
)

// ParseTimeframe validates a user-supplied timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.Valid() {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	switch tf {
	case TimeframeHour, TimeframeDay, TimeframeWeek, TimeframeMonth, TimeframeYear, TimeframeAllTime:
		return true
	}
	return false
}

// Window returns the sliding window duration and true, or zero and false for
// the unbounded all_time timeframe.
func (tf Timeframe) Window() (time.Duration, bool) {
	switch tf {
	case TimeframeHour:
		return windowHour, true
	case TimeframeDay:
		return windowDay, true
	case TimeframeWeek:
		return windowWeek, true
	case TimeframeMonth:
		return windowMonth, true
	case TimeframeYear:
		return windowYear, true
	}
	return 0, false
}

func (tf Timeframe) String() string { return string(tf) }
