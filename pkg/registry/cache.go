// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package registry

import (
	"sync"
	"time"

	"github.com/agentbridge/agentbridge-go/pkg/message"
)

// cacheEntry is one cached resolution. Static entries never expire.
type cacheEntry struct {
	endpoint Endpoint
	expires  time.Time
	static   bool
}

// Cache is a freshness-bounded, read-mostly endpoint cache. A stale read is
// tolerable; it results in an unreachable delivery, which is a handled
// failure path anyway.
type Cache struct {
	mutex   sync.RWMutex
	entries map[message.AgentID]cacheEntry
	ttl     time.Duration
}

// NewCache creates a Cache whose entries stay fresh for ttl.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Cache{
		entries: make(map[message.AgentID]cacheEntry),
		ttl:     ttl,
	}
}

// Get returns a cached Endpoint if it is still fresh.
func (cache *Cache) Get(id message.AgentID) (Endpoint, bool) {
	cache.mutex.RLock()
	defer cache.mutex.RUnlock()

	entry, ok := cache.entries[id]
	if !ok {
		return Endpoint{}, false
	}
	if !entry.static && time.Now().After(entry.expires) {
		return Endpoint{}, false
	}

	return entry.endpoint, true
}

// Put stores an Endpoint for the freshness window.
func (cache *Cache) Put(id message.AgentID, endpoint Endpoint) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	cache.entries[id] = cacheEntry{
		endpoint: endpoint,
		expires:  time.Now().Add(cache.ttl),
	}
}

// PutStatic stores an Endpoint that never expires, e.g., a configured peer.
func (cache *Cache) PutStatic(id message.AgentID, endpoint Endpoint) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	cache.entries[id] = cacheEntry{
		endpoint: endpoint,
		static:   true,
	}
}

// Invalidate drops a cached entry, e.g., after a delivery to its endpoint
// failed. Static entries are kept.
func (cache *Cache) Invalidate(id message.AgentID) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	if entry, ok := cache.entries[id]; ok && !entry.static {
		delete(cache.entries, id)
	}
}
