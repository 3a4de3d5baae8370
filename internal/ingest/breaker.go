// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package ingest

import (
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/watchrank/watchrank/internal/logging"
	"github.com/watchrank/watchrank/internal/metrics"
)

// NewStoreBreaker builds the circuit breaker guarding durable-store writes.
// While open, ingest fails fast with ErrStoreUnavailable and messages stay
// in the stream for redelivery instead of piling onto a struggling store.
func NewStoreBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[bool] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				metrics.IngestBreakerState.Set(1)
			} else {
				metrics.IngestBreakerState.Set(0)
			}
			logger := logging.With("ingest")
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	}
	return gobreaker.NewCircuitBreaker[bool](settings)
}
