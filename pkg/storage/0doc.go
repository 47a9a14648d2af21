// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package storage archives terminated conversations beyond the in-memory
// session window. Meta data lives in a badgerhold database, the message
// transcripts as xz-compressed JSON files next to it.
package storage
