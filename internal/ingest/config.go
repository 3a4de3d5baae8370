// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package ingest

import (
	"time"

	"github.com/watchrank/watchrank/internal/config"
	"github.com/watchrank/watchrank/internal/models"
)

// SubscriberConfig configures the durable JetStream subscriber.
type SubscriberConfig struct {
	URL              string
	StreamName       string
	DurableName      string
	QueueGroup       string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	CloseTimeout     time.Duration
	MaxDeliver       int
	MaxAckPending    int
	MaxReconnects    int
	ReconnectWait    time.Duration
}

// SubscriberConfigFrom derives subscriber settings from the app config.
func SubscriberConfigFrom(cfg *config.NATSConfig) SubscriberConfig {
	return SubscriberConfig{
		URL:              cfg.URL,
		StreamName:       cfg.StreamName,
		DurableName:      cfg.DurableName,
		QueueGroup:       cfg.QueueGroup,
		SubscribersCount: cfg.Subscribers,
		AckWaitTimeout:   cfg.AckWait,
		CloseTimeout:     30 * time.Second,
		MaxDeliver:       cfg.MaxDeliver,
		MaxAckPending:    cfg.MaxAckPending,
		MaxReconnects:    cfg.MaxReconnects,
		ReconnectWait:    cfg.ReconnectWait,
	}
}

// PublisherConfig configures the JetStream publisher used for the poison
// topic and by producers.
type PublisherConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	TrackMsgID    bool
}

// PublisherConfigFrom derives publisher settings from the app config.
func PublisherConfigFrom(cfg *config.NATSConfig) PublisherConfig {
	return PublisherConfig{
		URL:           cfg.URL,
		MaxReconnects: cfg.MaxReconnects,
		ReconnectWait: cfg.ReconnectWait,
		TrackMsgID:    true,
	}
}

// StreamConfig configures the backing JetStream stream.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// StreamConfigFrom derives the stream definition from the app config. The
// stream captures the whole views subject hierarchy, poison topic included.
func StreamConfigFrom(cfg *config.NATSConfig) StreamConfig {
	return StreamConfig{
		Name:            cfg.StreamName,
		Subjects:        []string{"views.>"},
		MaxAge:          cfg.StreamMaxAge,
		MaxBytes:        -1,
		MaxMsgs:         -1,
		DuplicateWindow: cfg.DuplicateWin,
		Replicas:        1,
	}
}

// RouterConfig configures the Watermill router middleware chain.
type RouterConfig struct {
	CloseTimeout         time.Duration
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64
	PoisonQueueTopic     string
}

// RouterConfigFrom derives router settings from the app config.
func RouterConfigFrom(cfg *config.NATSConfig) RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      cfg.RetryMax,
		RetryInitialInterval: cfg.RetryInterval,
		RetryMaxInterval:     time.Minute,
		RetryMultiplier:      2.0,
		PoisonQueueTopic:     models.TopicVideoViewedPoison,
	}
}

// BreakerConfig configures the circuit breaker guarding durable writes.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig returns production defaults for the store breaker.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "durable-store",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          15 * time.Second,
		FailureThreshold: 5,
	}
}
