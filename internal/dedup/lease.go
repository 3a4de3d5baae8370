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
	"github.com/goccy/go-json"
)

const leasePrefix = "lease:"

// leaseRecord is the stored form of a held lease.
type leaseRecord struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Leases provides expiring named locks on top of the dedup store. The
// periodic jobs acquire a lease before running so overlapping ticks, and
// eventually multiple replicas sharing a store, collapse to a single
// execution.
type Leases struct {
	store *Store
	owner string
	ttl   time.Duration
}

// NewLeases creates a lease manager identified by owner.
func NewLeases(store *Store, owner string, ttl time.Duration) *Leases {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Leases{store: store, owner: owner, ttl: ttl}
}

// Acquire attempts to take the named lease. It succeeds when the lease is
// free, expired, or already held by this owner (renewal). Returns false
// without error when another owner holds it.
func (l *Leases) Acquire(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	acquired := false
	err := l.store.db.Update(func(txn *badger.Txn) error {
		key := []byte(leasePrefix + name)
		now := time.Now().UTC()

		item, err := txn.Get(key)
		if err == nil {
			var rec leaseRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode lease %s: %w", name, err)
			}
			if rec.Owner != l.owner && now.Before(rec.ExpiresAt) {
				return nil
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("read lease %s: %w", name, err)
		}

		val, err := json.Marshal(leaseRecord{Owner: l.owner, ExpiresAt: now.Add(l.ttl)})
		if err != nil {
			return fmt.Errorf("encode lease %s: %w", name, err)
		}
		if err := txn.SetEntry(badger.NewEntry(key, val).WithTTL(l.ttl)); err != nil {
			return fmt.Errorf("write lease %s: %w", name, err)
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// Release drops the named lease if this owner holds it.
func (l *Leases) Release(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.store.db.Update(func(txn *badger.Txn) error {
		key := []byte(leasePrefix + name)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read lease %s: %w", name, err)
		}
		var rec leaseRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return fmt.Errorf("decode lease %s: %w", name, err)
		}
		if rec.Owner != l.owner {
			return nil
		}
		return txn.Delete(key)
	})
}
