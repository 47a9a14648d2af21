// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transport carries wire requests between bridges.
//
// The Client delivers a request to a resolved endpoint and classifies the
// outcome as Acknowledged, Unreachable or Rejected. Only Unreachable is
// retried, with exponential backoff and a fixed attempt budget; a Rejected
// outcome is a semantic refusal by the peer and retrying it would amplify
// the error. The Server is the inbound side, accepting requests on /a2a in
// either wire encoding and enforcing protocol version and hop limit before
// anything reaches the router.
package transport
