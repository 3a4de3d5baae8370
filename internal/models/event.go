// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

// Package models defines the core domain types shared across the ingest
// pipeline, the view ledger, the rollup aggregator, and the query surface.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Topic names for the messaging layer. Producers publish raw view events to
// TopicVideoViewed; messages that exhaust their retry budget are parked on
// TopicVideoViewedPoison for operator inspection.
const (
	TopicVideoViewed       = "views.video_viewed"
	TopicVideoViewedPoison = "views.video_viewed.poison"
)

// ViewEvent is a single "viewer watched a video" occurrence as it arrives
// from the broker. Timestamp is seconds since the Unix epoch and may carry a
// fractional part.
type ViewEvent struct {
	EventID   string  `json:"event_id"`
	VideoID   int64   `json:"video_id"`
	ViewerID  string  `json:"viewer_id,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

// NewViewEvent constructs an event with a fresh UUID identifier stamped at
// the current time. Used by test fixtures and the replay tooling.
func NewViewEvent(videoID int64, viewerID string) *ViewEvent {
	return &ViewEvent{
		EventID:   uuid.NewString(),
		VideoID:   videoID,
		ViewerID:  viewerID,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
	}
}

// ViewedAt converts the wire timestamp to a time.Time with nanosecond
// precision preserved from the fractional seconds.
func (e *ViewEvent) ViewedAt() time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// DedupKey returns the identity used for duplicate suppression. Events carry
// an explicit event_id; when a producer omits it the identity degrades to
// (viewer, video, timestamp truncated to one second), which intentionally
// collapses same-second replays from the same viewer.
func (e *ViewEvent) DedupKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	return fmt.Sprintf("%s:%d:%d", e.ViewerID, e.VideoID, int64(e.Timestamp))
}

// ValidationError reports a structurally invalid event field. Events failing
// validation are not retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Message)
}

// Validate checks structural validity of an inbound event.
func (e *ViewEvent) Validate() error {
	if e.VideoID <= 0 {
		return &ValidationError{Field: "video_id", Message: "must be a positive integer"}
	}
	if e.Timestamp <= 0 {
		return &ValidationError{Field: "timestamp", Message: "must be positive epoch seconds"}
	}
	if e.EventID == "" && e.ViewerID == "" {
		return &ValidationError{Field: "event_id", Message: "event_id or viewer_id required for identity"}
	}
	if len(e.EventID) > 128 {
		return &ValidationError{Field: "event_id", Message: "exceeds 128 bytes"}
	}
	if len(e.ViewerID) > 128 {
		return &ValidationError{Field: "viewer_id", Message: "exceeds 128 bytes"}
	}
	if strings.ContainsRune(e.EventID, '\x00') || strings.ContainsRune(e.ViewerID, '\x00') {
		return &ValidationError{Field: "event_id", Message: "contains NUL byte"}
	}
	return nil
}
