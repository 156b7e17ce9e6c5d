// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

// Package cache provides registry cache implementations: an in-memory
// TTL map and a Redis-backed variant.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/industrial-twin/twinhub/discovery"
)

// DefTTL is the default time a registry entry stays live.
const DefTTL = 60 * time.Minute

var _ discovery.Cache = (*memoryCache)(nil)

type memoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]map[string]discovery.Entry
}

// NewMemory returns an in-memory registry cache. Entries expire ttl after
// insertion; expiry is evaluated lazily on access and expired entries are
// evicted, not just skipped. A non-positive ttl falls back to the
// default.
func NewMemory(ttl time.Duration) discovery.Cache {
	if ttl <= 0 {
		ttl = DefTTL
	}
	return &memoryCache{
		ttl:     ttl,
		entries: make(map[string]map[string]discovery.Entry),
	}
}

func (mc *memoryCache) Lookup(ctx context.Context, bpn string) ([]discovery.Entry, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	var live []discovery.Entry
	for _, entry := range mc.sweep(bpn) {
		live = append(live, entry)
	}
	return live, nil
}

func (mc *memoryCache) Save(ctx context.Context, bpn string, entry discovery.Entry) error {
	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = time.Now()
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	partner, ok := mc.entries[bpn]
	if !ok {
		partner = make(map[string]discovery.Entry)
		mc.entries[bpn] = partner
	}
	partner[entry.AssetID] = entry
	return nil
}

func (mc *memoryCache) Remove(ctx context.Context, bpn, assetID string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if partner, ok := mc.entries[bpn]; ok {
		delete(partner, assetID)
		if len(partner) == 0 {
			delete(mc.entries, bpn)
		}
	}
	return nil
}

func (mc *memoryCache) Purge(ctx context.Context, bpn string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.entries, bpn)
	return nil
}

func (mc *memoryCache) Reset(ctx context.Context) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.entries = make(map[string]map[string]discovery.Entry)
	return nil
}

func (mc *memoryCache) Count(ctx context.Context, bpn string) (int, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	return len(mc.sweep(bpn)), nil
}

// sweep evicts the expired entries of a partner and returns the live
// ones. Callers must hold the mutex.
func (mc *memoryCache) sweep(bpn string) map[string]discovery.Entry {
	partner, ok := mc.entries[bpn]
	if !ok {
		return nil
	}

	now := time.Now()
	for assetID, entry := range partner {
		if now.Sub(entry.InsertedAt) > mc.ttl {
			delete(partner, assetID)
		}
	}
	if len(partner) == 0 {
		delete(mc.entries, bpn)
		return nil
	}
	return partner
}
