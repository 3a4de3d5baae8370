// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/watchrank/watchrank/internal/dedup"
	"github.com/watchrank/watchrank/internal/ledger"
	"github.com/watchrank/watchrank/internal/logging"
	"github.com/watchrank/watchrank/internal/metrics"
	"github.com/watchrank/watchrank/internal/models"
)

// ViewStore is the durable write surface the ingestor needs. Implemented by
// the database package; faked in tests.
type ViewStore interface {
	InsertView(ctx context.Context, ev *models.ViewEvent) (bool, error)
}

// Outcome classifies how an event was handled.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeDuplicate
)

// Stats are cumulative pipeline counters.
type Stats struct {
	Accepted   int64
	Duplicates int64
	Invalid    int64
	Failed     int64
}

// Ingestor applies view events to the durable store and the ledger. The
// order of effects is what guarantees exactly-once counting under broker
// redelivery: the durable insert (keyed by event identity) commits first,
// and every in-memory effect is conditioned on that insert having actually
// inserted.
type Ingestor struct {
	store     ViewStore
	ledger    *ledger.Ledger
	deduper   *dedup.Deduper
	breaker   *gobreaker.CircuitBreaker[bool]
	retention time.Duration
	ser       Serializer
	logger    zerolog.Logger
	now       func() time.Time

	accepted   atomic.Int64
	duplicates atomic.Int64
	invalid    atomic.Int64
	failed     atomic.Int64
}

// NewIngestor wires the pipeline core.
func NewIngestor(store ViewStore, lg *ledger.Ledger, d *dedup.Deduper, breaker *gobreaker.CircuitBreaker[bool]) *Ingestor {
	return &Ingestor{
		store:     store,
		ledger:    lg,
		deduper:   d,
		breaker:   breaker,
		retention: lg.Retention(),
		logger:    logging.With("ingest"),
		now:       time.Now,
	}
}

// Process applies one already validated event. Errors are always retryable;
// callers decide whether to redeliver.
func (in *Ingestor) Process(ctx context.Context, ev *models.ViewEvent) (Outcome, error) {
	key := ev.DedupKey()

	dup, err := in.deduper.IsDuplicate(ctx, key)
	if err != nil {
		in.failed.Add(1)
		return 0, NewRetryableError("dedup lookup failed", err)
	}
	if dup {
		in.duplicates.Add(1)
		return OutcomeDuplicate, nil
	}

	inserted, err := in.breaker.Execute(func() (bool, error) {
		return in.store.InsertView(ctx, ev)
	})
	if err != nil {
		in.failed.Add(1)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, NewRetryableError("store breaker open", ErrStoreUnavailable)
		}
		return 0, NewRetryableError("durable write failed", err)
	}

	if !inserted {
		// The store already had this identity: a redelivery that beat
		// the dedup index, e.g. after a crash between commit and ack.
		in.markSeen(ctx, key)
		in.duplicates.Add(1)
		return OutcomeDuplicate, nil
	}

	viewedAt := ev.ViewedAt()
	in.ledger.IncrementTotal(ev.VideoID)
	if !viewedAt.Before(in.now().Add(-in.retention)) {
		in.ledger.Insert(ev.VideoID, key, viewedAt)
	}

	in.markSeen(ctx, key)
	in.accepted.Add(1)
	return OutcomeAccepted, nil
}

// markSeen records the identity in the dedup layers. Failure here is not
// fatal: the views table's primary key still suppresses the replay, so log
// and move on.
func (in *Ingestor) markSeen(ctx context.Context, key string) {
	if err := in.deduper.Record(ctx, key); err != nil {
		in.logger.Warn().Err(err).Str("key", key).Msg("Failed to record dedup identity")
	}
}

// Handle is the router-facing message handler.
func (in *Ingestor) Handle(msg *message.Message) error {
	start := time.Now()

	ev, err := in.ser.Unmarshal(msg)
	if err != nil {
		in.invalid.Add(1)
		metrics.RecordIngestEvent("invalid", time.Since(start))
		in.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Rejecting malformed event")
		return err
	}

	outcome, err := in.Process(msg.Context(), ev)
	if err != nil {
		metrics.RecordIngestEvent("failed", time.Since(start))
		return err
	}

	switch outcome {
	case OutcomeDuplicate:
		metrics.RecordIngestEvent("duplicate", time.Since(start))
		in.logger.Debug().
			Str("key", ev.DedupKey()).
			Int64("video_id", ev.VideoID).
			Msg("Suppressed duplicate event")
	default:
		metrics.RecordIngestEvent("accepted", time.Since(start))
	}
	return nil
}

// Stats returns a snapshot of the pipeline counters.
func (in *Ingestor) Stats() Stats {
	return Stats{
		Accepted:   in.accepted.Load(),
		Duplicates: in.duplicates.Load(),
		Invalid:    in.invalid.Load(),
		Failed:     in.failed.Load(),
	}
}
