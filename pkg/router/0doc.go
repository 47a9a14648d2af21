// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package router is the bridge's inner processing: it classifies every
// inbound message as a local request or a relay, resolves the relay target,
// applies the transformation pipeline, dispatches over the transport and
// drives the conversation record to exactly one terminal status. No message
// is dropped without a status update, and a bounded worker pool provides
// backpressure against inbound floods.
package router
