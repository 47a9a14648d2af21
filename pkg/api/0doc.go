// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api is the local synchronous surface of a bridge: a small REST API
// for submitting messages and polling conversation state, plus a WebSocket
// stream pushing every terminated exchange to connected observers. All
// handlers are safe to call concurrently with in-flight router processing.
package api
