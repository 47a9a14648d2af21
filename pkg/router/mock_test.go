// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package router

import (
	"context"
	"sync"

	"github.com/agentbridge/agentbridge-go/pkg/message"
	"github.com/agentbridge/agentbridge-go/pkg/registry"
	"github.com/agentbridge/agentbridge-go/pkg/transport"
)

// mockResolver resolves from a fixed map, optionally failing every lookup.
type mockResolver struct {
	mutex       sync.Mutex
	agents      map[message.AgentID]registry.Endpoint
	err         error
	lookups     int
	invalidated []message.AgentID
}

func (m *mockResolver) Resolve(_ context.Context, ref message.AgentID) (registry.Endpoint, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.lookups++

	if m.err != nil {
		return registry.Endpoint{}, m.err
	}
	if endpoint, ok := m.agents[ref]; ok {
		return endpoint, nil
	}
	return registry.Endpoint{}, registry.ErrNotFound
}

func (m *mockResolver) Invalidate(id message.AgentID) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.invalidated = append(m.invalidated, id)
}

// mockDeliverer records outgoing wire requests and answers each with a
// configurable result.
type mockDeliverer struct {
	mutex      sync.Mutex
	deliveries []message.WireRequest
	result     transport.DeliveryResult
}

func (m *mockDeliverer) Deliver(_ context.Context, _ registry.Endpoint, req message.WireRequest) transport.DeliveryResult {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.deliveries = append(m.deliveries, req)
	return m.result
}

func (m *mockDeliverer) count() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return len(m.deliveries)
}

func (m *mockDeliverer) last() message.WireRequest {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.deliveries[len(m.deliveries)-1]
}
