// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"time"

	"github.com/agentbridge/agentbridge-go/pkg/message"
)

// Status of a conversation's current exchange.
type Status uint8

const (
	// StatusPending marks an exchange still being processed.
	StatusPending Status = iota

	// StatusCompleted marks an exchange that ended in a delivered reply.
	StatusCompleted

	// StatusFailed marks an exchange that ended in an error reply.
	StatusFailed
)

func (status Status) String() string {
	switch status {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Record is a snapshot of one conversation: its ordered message history and
// the status of its most recent exchange.
type Record struct {
	ConversationID string
	Messages       []message.Message
	Status         Status
	ErrorDetail    string
	StartedAt      time.Time
	TerminatedAt   time.Time
}
