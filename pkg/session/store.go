// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/agentbridge/agentbridge-go/pkg/message"
)

var (
	// ErrNoConversation means the requested conversation is not tracked.
	ErrNoConversation = errors.New("no such conversation")

	// ErrNoMessages means no message has terminated yet.
	ErrNoMessages = errors.New("no messages recorded yet")
)

// conversation is the Store-internal mutable state of one conversation.
// procMutex serializes processing order within the conversation; dataMutex
// guards the fields below it.
type conversation struct {
	procMutex sync.Mutex

	dataMutex    sync.Mutex
	messages     []message.Message
	status       Status
	errorDetail  string
	startedAt    time.Time
	terminatedAt time.Time
}

// Store holds all conversations. The Store-level mutex only guards the map;
// each conversation carries its own locks, so mutations on unrelated
// conversations proceed concurrently.
type Store struct {
	mutex         sync.RWMutex
	conversations map[string]*conversation
	maxRecords    int

	latestMutex sync.Mutex
	latest      message.Message
	latestAt    time.Time
	hasLatest   bool
}

// NewStore creates a Store bounded to maxRecords conversations. Values below
// one fall back to 1024.
func NewStore(maxRecords int) *Store {
	if maxRecords < 1 {
		maxRecords = 1024
	}

	return &Store{
		conversations: make(map[string]*conversation),
		maxRecords:    maxRecords,
	}
}

// conversationFor returns the tracked conversation, creating it if necessary.
func (store *Store) conversationFor(conversationID string) *conversation {
	store.mutex.RLock()
	conv, ok := store.conversations[conversationID]
	store.mutex.RUnlock()
	if ok {
		return conv
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	if conv, ok = store.conversations[conversationID]; ok {
		return conv
	}

	if len(store.conversations) >= store.maxRecords {
		store.evictLocked()
	}

	conv = &conversation{
		status:    StatusPending,
		startedAt: time.Now(),
	}
	store.conversations[conversationID] = conv

	return conv
}

// evictLocked drops the oldest terminated conversation. Pending conversations
// are never evicted; if everything is pending the Store grows beyond its
// bound rather than losing an in-flight record.
func (store *Store) evictLocked() {
	var (
		victimID string
		victimAt time.Time
	)

	for id, conv := range store.conversations {
		conv.dataMutex.Lock()
		status, terminatedAt := conv.status, conv.terminatedAt
		conv.dataMutex.Unlock()

		if status == StatusPending {
			continue
		}
		if victimID == "" || terminatedAt.Before(victimAt) {
			victimID, victimAt = id, terminatedAt
		}
	}

	if victimID == "" {
		log.WithField("records", len(store.conversations)).Warn(
			"Session store exceeds its bound, but every conversation is pending")
		return
	}

	delete(store.conversations, victimID)

	log.WithFields(log.Fields{
		"conversation": victimID,
		"terminated":   victimAt,
	}).Debug("Session store evicted oldest terminated conversation")
}

// Lock serializes processing within one conversation and returns the matching
// unlock function. Messages of the same conversation are processed in arrival
// order; unrelated conversations are unaffected.
func (store *Store) Lock(conversationID string) (unlock func()) {
	conv := store.conversationFor(conversationID)
	conv.procMutex.Lock()
	return conv.procMutex.Unlock
}

// Append adds a Message to its conversation's history and marks the exchange
// pending again.
func (store *Store) Append(msg message.Message) {
	conv := store.conversationFor(msg.ConversationID)

	conv.dataMutex.Lock()
	defer conv.dataMutex.Unlock()

	conv.messages = append(conv.messages, msg)
	conv.status = StatusPending
	conv.errorDetail = ""
}

// AppendReply adds a derived Message without touching the exchange status.
func (store *Store) AppendReply(msg message.Message) {
	conv := store.conversationFor(msg.ConversationID)

	conv.dataMutex.Lock()
	defer conv.dataMutex.Unlock()

	conv.messages = append(conv.messages, msg)
}

// Complete transitions the conversation's exchange to StatusCompleted and
// publishes its final message as the globally latest one.
func (store *Store) Complete(conversationID string) {
	store.terminate(conversationID, StatusCompleted, "")
}

// Fail transitions the conversation's exchange to StatusFailed.
func (store *Store) Fail(conversationID string, errorDetail string) {
	store.terminate(conversationID, StatusFailed, errorDetail)
}

func (store *Store) terminate(conversationID string, status Status, errorDetail string) {
	conv := store.conversationFor(conversationID)

	now := time.Now()

	conv.dataMutex.Lock()
	conv.status = status
	conv.errorDetail = errorDetail
	conv.terminatedAt = now

	var last message.Message
	var hasLast bool
	if l := len(conv.messages); l > 0 {
		last, hasLast = conv.messages[l-1], true
	}
	conv.dataMutex.Unlock()

	if !hasLast {
		return
	}

	store.latestMutex.Lock()
	if !store.hasLatest || !now.Before(store.latestAt) {
		store.latest = last
		store.latestAt = now
		store.hasLatest = true
	}
	store.latestMutex.Unlock()
}

// Latest returns the final message of the most recently terminated exchange.
// With a conversationID it returns that conversation's newest message
// instead.
func (store *Store) Latest(conversationID string) (message.Message, error) {
	if conversationID == "" {
		store.latestMutex.Lock()
		defer store.latestMutex.Unlock()

		if !store.hasLatest {
			return message.Message{}, ErrNoMessages
		}
		return store.latest, nil
	}

	store.mutex.RLock()
	conv, ok := store.conversations[conversationID]
	store.mutex.RUnlock()
	if !ok {
		return message.Message{}, ErrNoConversation
	}

	conv.dataMutex.Lock()
	defer conv.dataMutex.Unlock()

	if len(conv.messages) == 0 {
		return message.Message{}, ErrNoMessages
	}
	return conv.messages[len(conv.messages)-1], nil
}

// Snapshot returns a copy of one conversation's Record.
func (store *Store) Snapshot(conversationID string) (Record, error) {
	store.mutex.RLock()
	conv, ok := store.conversations[conversationID]
	store.mutex.RUnlock()
	if !ok {
		return Record{}, ErrNoConversation
	}

	return conv.snapshot(conversationID), nil
}

// Records returns copies of all tracked conversations.
func (store *Store) Records() []Record {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	records := make([]Record, 0, len(store.conversations))
	for id, conv := range store.conversations {
		records = append(records, conv.snapshot(id))
	}
	return records
}

// Active returns copies of all conversations with a pending exchange.
func (store *Store) Active() []Record {
	var active []Record
	for _, record := range store.Records() {
		if record.Status == StatusPending {
			active = append(active, record)
		}
	}
	return active
}

func (conv *conversation) snapshot(conversationID string) Record {
	conv.dataMutex.Lock()
	defer conv.dataMutex.Unlock()

	messages := make([]message.Message, len(conv.messages))
	copy(messages, conv.messages)

	return Record{
		ConversationID: conversationID,
		Messages:       messages,
		Status:         conv.status,
		ErrorDetail:    conv.errorDetail,
		StartedAt:      conv.startedAt,
		TerminatedAt:   conv.terminatedAt,
	}
}
