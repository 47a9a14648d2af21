// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package session tracks in-flight and completed exchanges per conversation.
//
// History is append-only; only a record's status transitions. Records are
// locked individually so unrelated conversations never serialize on each
// other, and a bounded eviction policy drops the oldest terminated records
// first while pending records are always kept.
package session
