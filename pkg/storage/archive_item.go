// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/agentbridge/agentbridge-go/pkg/message"
	"github.com/agentbridge/agentbridge-go/pkg/session"
)

// ArchiveItem is the meta data of one archived conversation. The Archive
// operates on ArchiveItems; the message transcript itself lives in a
// compressed file referenced by Filename.
type ArchiveItem struct {
	ConversationID string `badgerhold:"key"`

	Status      string
	ErrorDetail string

	StartedAt    time.Time
	TerminatedAt time.Time `badgerholdIndex:"TerminatedAt"`

	MessageCount int
	Filename     string
}

// newArchiveItem derives an ArchiveItem from a session Record, placing its
// transcript file below transcriptDir.
func newArchiveItem(record session.Record, transcriptDir string) ArchiveItem {
	filename := path.Join(transcriptDir, hex.EncodeToString([]byte(record.ConversationID)))

	return ArchiveItem{
		ConversationID: record.ConversationID,

		Status:      record.Status.String(),
		ErrorDetail: record.ErrorDetail,

		StartedAt:    record.StartedAt,
		TerminatedAt: record.TerminatedAt,

		MessageCount: len(record.Messages),
		Filename:     filename,
	}
}

// storeTranscript writes the conversation's messages as xz-compressed JSON.
func (item ArchiveItem) storeTranscript(messages []message.Message) error {
	f, err := os.Create(item.Filename)
	if err != nil {
		return err
	}

	w, err := xz.NewWriter(f)
	if err != nil {
		_ = f.Close()
		return err
	}

	if err := json.NewEncoder(w).Encode(messages); err != nil {
		_ = w.Close()
		_ = f.Close()
		return err
	}

	if err := w.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// loadTranscript reads the conversation's messages back.
func (item ArchiveItem) loadTranscript() (messages []message.Message, err error) {
	f, err := os.Open(item.Filename)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r, err := xz.NewReader(f)
	if err != nil {
		return nil, err
	}

	err = json.NewDecoder(r).Decode(&messages)
	return
}

// deleteTranscript removes the transcript file.
func (item ArchiveItem) deleteTranscript() error {
	return os.Remove(item.Filename)
}
