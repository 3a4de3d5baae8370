// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/watchrank/watchrank/internal/config"
	"github.com/watchrank/watchrank/internal/logging"
)

const seenPrefix = "seen:"

// Store is the Badger-backed persistent dedup index. Keys expire via
// Badger's native TTL, so the index stays bounded without an explicit
// cleanup pass.
type Store struct {
	db  *badger.DB
	ttl time.Duration
	cfg *config.DedupConfig
}

// OpenStore opens (or creates) the index at the configured path.
func OpenStore(cfg *config.DedupConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithLogger(nil).
		WithSyncWrites(cfg.SyncWrites).
		WithInMemory(cfg.InMemory)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open dedup store: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{db: db, ttl: ttl, cfg: cfg}, nil
}

// Seen reports whether the identity was recorded within the TTL horizon.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(seenPrefix + key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return true, nil
}

// Mark records the identity with the store's TTL.
func (s *Store) Mark(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(seenPrefix+key), []byte{1}).WithTTL(s.ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GCService periodically runs Badger's value log garbage collection. It
// implements suture's service contract.
type GCService struct {
	store    *Store
	interval time.Duration
	discard  float64
}

// NewGCService wraps the store's GC loop as a supervised service.
func NewGCService(store *Store, cfg *config.DedupConfig) *GCService {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	discard := cfg.GCDiscard
	if discard <= 0 || discard > 1 {
		discard = 0.5
	}
	return &GCService{store: store, interval: interval, discard: discard}
}

func (g *GCService) String() string { return "dedup-gc" }

// Serve runs until the context is canceled.
func (g *GCService) Serve(ctx context.Context) error {
	logger := logging.With("dedup-gc")
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing worth
			// collecting this round.
			for {
				err := g.store.db.RunValueLogGC(g.discard)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						logger.Warn().Err(err).Msg("Value log GC failed")
					}
					break
				}
			}
		}
	}
}
