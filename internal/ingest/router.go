// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/watchrank/watchrank/internal/metrics"
)

// Router wraps the Watermill router with the middleware chain the pipeline
// relies on, outer to inner:
//
//  1. Recoverer converts handler panics to errors.
//  2. Retry re-executes failed handlers with exponential backoff.
//  3. PoisonQueue parks permanently failing messages onto the poison
//     topic, acking the original so the stream keeps moving. Retryable
//     failures that outlive the retry budget are nacked instead and come
//     back through broker redelivery.
//
// Malformed payloads are permanent failures; they exhaust the retry budget
// quickly and end up parked for operator inspection rather than silently
// dropped.
type Router struct {
	router   *message.Router
	config   RouterConfig
	logger   watermill.LoggerAdapter
	handlers map[string]*message.Handler
}

// NewRouter builds the router. poisonPublisher receives messages that
// exhaust their retry budget; it must not be nil.
func NewRouter(cfg *RouterConfig, poisonPublisher message.Publisher, logger watermill.LoggerAdapter) (*Router, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	if poisonPublisher == nil {
		return nil, fmt.Errorf("poison publisher is required")
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	r := &Router{
		router:   wmRouter,
		config:   *cfg,
		logger:   logger,
		handlers: make(map[string]*message.Handler),
	}

	wmRouter.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	poison, err := middleware.PoisonQueueWithFilter(poisonPublisher, cfg.PoisonQueueTopic, poisonFilter)
	if err != nil {
		return nil, fmt.Errorf("create poison queue middleware: %w", err)
	}
	wmRouter.AddMiddleware(poison)

	return r, nil
}

// poisonFilter decides whether a handler error parks the message on the
// poison topic. Transient failures fall through to a nack so the broker
// redelivers them; only unrecoverable events are parked.
func poisonFilter(err error) bool {
	if !IsPermanent(err) {
		return false
	}
	metrics.IngestPoisonedTotal.Inc()
	return true
}

// AddConsumerHandler registers a no-output handler for a topic.
func (r *Router) AddConsumerHandler(
	name string,
	subscribeTopic string,
	subscriber message.Subscriber,
	handler message.NoPublishHandlerFunc,
) *message.Handler {
	h := r.router.AddConsumerHandler(name, subscribeTopic, subscriber, handler)
	r.handlers[name] = h
	return h
}

// Run starts the router and blocks until the context is canceled.
func (r *Router) Run(ctx context.Context) error {
	err := r.router.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Running returns a channel that closes once all handlers are consuming.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// IsRunning reports whether the router is processing messages.
func (r *Router) IsRunning() bool {
	return r.router.IsRunning()
}

// Close gracefully stops the router, waiting up to CloseTimeout for
// in-flight messages.
func (r *Router) Close() error {
	return r.router.Close()
}
