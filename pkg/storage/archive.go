// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"os"
	"path"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold"

	"github.com/agentbridge/agentbridge-go/pkg/message"
	"github.com/agentbridge/agentbridge-go/pkg/session"
)

const (
	dirBadger     string = "db"
	dirTranscript string = "transcripts"
)

// Archive persists terminated conversations.
type Archive struct {
	bh *badgerhold.Store

	badgerDir     string
	transcriptDir string
}

// NewArchive creates a new Archive or opens an existing one below dir.
func NewArchive(dir string) (a *Archive, err error) {
	badgerDir := path.Join(dir, dirBadger)
	transcriptDir := path.Join(dir, dirTranscript)

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<28 - 1

	if dirErr := os.MkdirAll(badgerDir, 0700); dirErr != nil {
		err = dirErr
		return
	}
	if dirErr := os.MkdirAll(transcriptDir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	if bh, bhErr := badgerhold.Open(opts); bhErr != nil {
		err = bhErr
	} else {
		a = &Archive{
			bh: bh,

			badgerDir:     badgerDir,
			transcriptDir: transcriptDir,
		}
	}
	return
}

// Close the Archive. It must not be used afterwards.
func (a *Archive) Close() error {
	return a.bh.Close()
}

// Push archives a terminated conversation. A conversation terminating again
// later, e.g., after a follow-up exchange, overwrites its previous entry.
func (a *Archive) Push(record session.Record) error {
	item := newArchiveItem(record, a.transcriptDir)

	if err := item.storeTranscript(record.Messages); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"conversation": item.ConversationID,
		"status":       item.Status,
		"messages":     item.MessageCount,
	}).Debug("Archive stores conversation")

	return a.bh.Upsert(item.ConversationID, item)
}

// Query fetches an archived conversation's meta data and transcript.
func (a *Archive) Query(conversationID string) (item ArchiveItem, messages []message.Message, err error) {
	if err = a.bh.Get(conversationID, &item); err != nil {
		return
	}

	messages, err = item.loadTranscript()
	return
}

// Recent returns the meta data of the n most recently terminated
// conversations, newest first.
func (a *Archive) Recent(n int) (items []ArchiveItem, err error) {
	err = a.bh.Find(&items,
		badgerhold.Where("TerminatedAt").Gt(time.Time{}).SortBy("TerminatedAt").Reverse().Limit(n))
	return
}

// KnowsConversation checks if such a conversation is archived.
func (a *Archive) KnowsConversation(conversationID string) bool {
	var item ArchiveItem
	return a.bh.Get(conversationID, &item) != badgerhold.ErrNotFound
}

// DeleteOlderThan removes all conversations that terminated before the
// retention cutoff, transcripts included.
func (a *Archive) DeleteOlderThan(retention time.Duration) {
	var items []ArchiveItem
	if err := a.bh.Find(&items, badgerhold.Where("TerminatedAt").Lt(time.Now().Add(-retention))); err != nil {
		log.WithError(err).Warn("Failed to query expired archive entries")
		return
	}

	for _, item := range items {
		logger := log.WithField("conversation", item.ConversationID)

		if err := item.deleteTranscript(); err != nil && !os.IsNotExist(err) {
			logger.WithError(err).Warn("Failed to delete transcript file")
		}

		if err := a.bh.Delete(item.ConversationID, ArchiveItem{}); err != nil {
			logger.WithError(err).Warn("Failed to delete expired archive entry")
		} else {
			logger.Debug("Deleted expired archive entry")
		}
	}
}
