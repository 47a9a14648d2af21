// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package registry resolves agent references to reachable network endpoints.
//
// The Resolver consults a local freshness-bounded cache first and falls back
// to the external registry service, an HTTP directory mapping agent ids to
// endpoints. Registry unavailability is a soft failure: after the lookup
// retry budget is exhausted the caller receives ErrUnavailable and decides
// how to surface it. Static peers and discovered neighbors can be seeded
// into the Resolver without any registry round trip.
package registry
