// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"time"

	"github.com/agentbridge/agentbridge-go/pkg/message"
	"github.com/agentbridge/agentbridge-go/pkg/session"
)

// SubmitRequest describes a JSON to be POSTed to /api/submit.
type SubmitRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// SubmitResponse describes a JSON response for /api/submit.
type SubmitResponse struct {
	Message     *MessageJSON `json:"message,omitempty"`
	Error       string       `json:"error,omitempty"`
	FailureKind string       `json:"failure_kind,omitempty"`
}

// LatestResponse describes a JSON response for /api/latest.
type LatestResponse struct {
	Message *MessageJSON `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// MessageJSON is the external representation of a message.Message.
type MessageJSON struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Recipient      string    `json:"recipient"`
	Text           string    `json:"text"`
	InReplyTo      string    `json:"in_reply_to,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

func messageToJSON(msg message.Message) *MessageJSON {
	return &MessageJSON{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         msg.Sender.String(),
		Recipient:      msg.Recipient.String(),
		Text:           msg.Text,
		InReplyTo:      msg.InReplyTo,
		Timestamp:      msg.Timestamp,
	}
}

// RecordJSON is the external representation of a conversation record.
type RecordJSON struct {
	ConversationID string         `json:"conversation_id"`
	Status         string         `json:"status"`
	ErrorDetail    string         `json:"error_detail,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	TerminatedAt   *time.Time     `json:"terminated_at,omitempty"`
	Messages       []*MessageJSON `json:"messages,omitempty"`
}

func recordToJSON(record session.Record, withMessages bool) RecordJSON {
	rj := RecordJSON{
		ConversationID: record.ConversationID,
		Status:         record.Status.String(),
		ErrorDetail:    record.ErrorDetail,
		StartedAt:      record.StartedAt,
	}

	if !record.TerminatedAt.IsZero() {
		terminatedAt := record.TerminatedAt
		rj.TerminatedAt = &terminatedAt
	}

	if withMessages {
		for _, msg := range record.Messages {
			rj.Messages = append(rj.Messages, messageToJSON(msg))
		}
	}

	return rj
}

// StatusResponse describes a JSON response for /api/status.
type StatusResponse struct {
	AgentID       string `json:"agent_id"`
	WireVersion   string `json:"wire_version"`
	Conversations int    `json:"conversations"`
	Active        int    `json:"active"`
}
