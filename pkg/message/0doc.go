// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package message holds the data model shared by all bridge components: the
// immutable Message exchanged between agents, the AgentID naming scheme with
// its @reference syntax, and the wire request/response format spoken between
// bridges, available in both a JSON and a CBOR encoding.
package message
