// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package registry

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/agentbridge/agentbridge-go/pkg/message"
)

// LookupClient is the registry lookup contract the Resolver relies on.
type LookupClient interface {
	Lookup(ctx context.Context, id message.AgentID) (Endpoint, error)
}

// Resolver maps agent references to Endpoints, cache first, registry second.
// Concurrent resolutions of the same reference are collapsed into a single
// registry query.
type Resolver struct {
	client LookupClient
	cache  *Cache

	inflightMutex sync.Mutex
	inflight      map[message.AgentID]*inflightLookup
}

// inflightLookup is one registry query in progress. Collapsed waiters block
// on done and read the shared verdict afterwards.
type inflightLookup struct {
	done chan struct{}

	endpoint Endpoint
	err      error
}

// NewResolver creates a Resolver on top of a LookupClient and a Cache. A nil
// client means no registry is configured; references beyond the cache resolve
// to ErrNotFound then.
func NewResolver(client LookupClient, cache *Cache) *Resolver {
	return &Resolver{
		client:   client,
		cache:    cache,
		inflight: make(map[message.AgentID]*inflightLookup),
	}
}

// Resolve returns the Endpoint for an agent reference. The error is
// ErrNotFound for unknown agents and ErrUnavailable if the registry could
// not be reached within its retry budget.
func (resolver *Resolver) Resolve(ctx context.Context, ref message.AgentID) (Endpoint, error) {
	if endpoint, ok := resolver.cache.Get(ref); ok {
		return endpoint, nil
	}

	if resolver.client == nil {
		return Endpoint{}, fmt.Errorf("%w: no registry is configured", ErrNotFound)
	}

	// Another goroutine may already be resolving this reference; wait for
	// its verdict instead of issuing a second registry query.
	resolver.inflightMutex.Lock()
	if lookup, exists := resolver.inflight[ref]; exists {
		resolver.inflightMutex.Unlock()

		select {
		case <-lookup.done:
			return lookup.endpoint, lookup.err
		case <-ctx.Done():
			return Endpoint{}, ctx.Err()
		}
	}

	lookup := &inflightLookup{done: make(chan struct{})}
	resolver.inflight[ref] = lookup
	resolver.inflightMutex.Unlock()

	defer func() {
		resolver.inflightMutex.Lock()
		delete(resolver.inflight, ref)
		resolver.inflightMutex.Unlock()

		close(lookup.done)
	}()

	endpoint, err := resolver.client.Lookup(ctx, ref)
	if err != nil {
		log.WithFields(log.Fields{
			"agent": ref,
			"error": err,
		}).Debug("Resolving agent reference failed")

		lookup.err = err
		return Endpoint{}, err
	}

	resolver.cache.Put(ref, endpoint)
	lookup.endpoint = endpoint

	log.WithFields(log.Fields{
		"agent":    ref,
		"endpoint": endpoint,
	}).Debug("Resolved agent reference through the registry")

	return endpoint, nil
}

// AddStatic seeds a never-expiring resolution, e.g., a configured peer.
func (resolver *Resolver) AddStatic(id message.AgentID, endpoint Endpoint) {
	resolver.cache.PutStatic(id, endpoint)
}

// AddDiscovered seeds a resolution learned from the local network. It is
// subject to the usual freshness window, disappearing peers age out.
func (resolver *Resolver) AddDiscovered(id message.AgentID, endpoint Endpoint) {
	resolver.cache.Put(id, endpoint)
}

// Invalidate drops a cached resolution after its endpoint proved stale.
func (resolver *Resolver) Invalidate(id message.AgentID) {
	resolver.cache.Invalidate(id)
}
