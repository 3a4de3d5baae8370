// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package ingest

import (
	"context"

	"github.com/watchrank/watchrank/internal/logging"
	"github.com/watchrank/watchrank/internal/models"
)

// Service runs the consumer router under the supervision tree.
type Service struct {
	router     *Router
	subscriber *Subscriber
	ingestor   *Ingestor
}

// NewService registers the view-event handler on the router and returns the
// supervised service.
func NewService(router *Router, subscriber *Subscriber, ingestor *Ingestor) *Service {
	router.AddConsumerHandler(
		"view_events",
		models.TopicVideoViewed,
		subscriber.Messages(),
		ingestor.Handle,
	)
	return &Service{router: router, subscriber: subscriber, ingestor: ingestor}
}

func (s *Service) String() string { return "ingest-router" }

// Serve runs the router until the context is canceled.
func (s *Service) Serve(ctx context.Context) error {
	logger := logging.With("ingest")
	logger.Info().Msg("Starting view event consumer")
	return s.router.Run(ctx)
}

// Healthy reports whether the router is consuming.
func (s *Service) Healthy() bool {
	return s.router.IsRunning()
}
