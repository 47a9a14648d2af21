// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AgentID names an agent within the shared addressing convention. IDs are
// case-sensitive ASCII, limited to letters, digits, and ".", "_", "-".
type AgentID string

// ParseAgentID checks a raw token against the addressing convention.
func ParseAgentID(token string) (AgentID, error) {
	if token == "" {
		return "", fmt.Errorf("agent id must not be empty")
	}
	for i := 0; i < len(token); i++ {
		if !isIdentByte(token[i]) {
			return "", fmt.Errorf("agent id %q contains invalid byte at %d", token, i)
		}
	}
	return AgentID(token), nil
}

// MustParseAgentID is a ParseAgentID that panics on invalid input.
func MustParseAgentID(token string) AgentID {
	id, err := ParseAgentID(token)
	if err != nil {
		panic(err)
	}
	return id
}

func (id AgentID) String() string {
	return string(id)
}

// Message is one unit of exchange. A Message is never mutated after creation;
// derived messages, e.g., a reply, reference their origin through InReplyTo.
type Message struct {
	ID             string
	ConversationID string
	Sender         AgentID
	Recipient      AgentID
	Text           string
	InReplyTo      string
	Timestamp      time.Time
}

// NewMessage creates a Message with a fresh ID and the current time.
func NewMessage(conversationID string, sender, recipient AgentID, text string) Message {
	return Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender,
		Recipient:      recipient,
		Text:           text,
		Timestamp:      time.Now(),
	}
}

// Reply derives a new Message answering this one, sent by from.
func (m Message) Reply(from AgentID, text string) Message {
	reply := NewMessage(m.ConversationID, from, m.Sender, text)
	reply.InReplyTo = m.ID
	return reply
}
