// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

// Package dedup suppresses duplicate view events. A fixed-capacity in-memory
// window answers the common case without touching disk; a BadgerDB index
// with a TTL backs it so suppression survives restarts and covers the full
// redelivery horizon. The same Badger store also hosts the leases that keep
// the periodic jobs single-flight.
package dedup

import (
	"container/list"
	"sync"
	"time"
)

// Window is an exact-match LRU set of recently seen event identities.
// All operations are O(1).
type Window struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List

	hits   uint64
	misses uint64
}

type windowItem struct {
	key     string
	seenAt  time.Time
	expires time.Time
}

// NewWindow creates a window holding at most capacity identities, each
// expiring after ttl. A zero ttl disables time-based expiry.
func NewWindow(capacity int, ttl time.Duration) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Contains reports whether key is in the window without refreshing its
// recency.
func (w *Window) Contains(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	el, ok := w.items[key]
	if !ok {
		w.misses++
		return false
	}
	item := el.Value.(*windowItem)
	if w.ttl > 0 && time.Now().After(item.expires) {
		w.removeLocked(el)
		w.misses++
		return false
	}
	w.hits++
	return true
}

// Record marks key as seen, evicting the least recently seen identity when
// the window is full.
func (w *Window) Record(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if el, ok := w.items[key]; ok {
		item := el.Value.(*windowItem)
		item.seenAt = now
		item.expires = now.Add(w.ttl)
		w.order.MoveToFront(el)
		return
	}

	for w.order.Len() >= w.capacity {
		w.removeLocked(w.order.Back())
	}
	el := w.order.PushFront(&windowItem{key: key, seenAt: now, expires: now.Add(w.ttl)})
	w.items[key] = el
}

// CleanupExpired removes entries past their TTL, returning the number
// removed.
func (w *Window) CleanupExpired() int {
	if w.ttl <= 0 {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	removed := 0
	for el := w.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*windowItem).expires) {
			w.removeLocked(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Len returns the number of identities currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.order.Len()
}

// Stats returns cumulative hit and miss counts.
func (w *Window) Stats() (hits, misses uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hits, w.misses
}

func (w *Window) removeLocked(el *list.Element) {
	item := el.Value.(*windowItem)
	delete(w.items, item.key)
	w.order.Remove(el)
}
