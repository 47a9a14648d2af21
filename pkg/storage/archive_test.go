// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"os"
	"testing"
	"time"

	"github.com/agentbridge/agentbridge-go/pkg/message"
	"github.com/agentbridge/agentbridge-go/pkg/session"
)

func setupArchive(t *testing.T) *Archive {
	t.Helper()

	dir, err := os.MkdirTemp("", "archive")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	archive, err := NewArchive(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = archive.Close() })

	return archive
}

func terminatedRecord(conversationID string, terminatedAt time.Time) session.Record {
	msg := message.NewMessage(conversationID, "alice", "bridge", "hello")
	reply := msg.Reply("bridge", "Arr, hello")

	return session.Record{
		ConversationID: conversationID,
		Messages:       []message.Message{msg, reply},
		Status:         session.StatusCompleted,
		StartedAt:      terminatedAt.Add(-time.Second),
		TerminatedAt:   terminatedAt,
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	archive := setupArchive(t)

	record := terminatedRecord("conv-1", time.Now())
	if err := archive.Push(record); err != nil {
		t.Fatal(err)
	}

	item, messages, err := archive.Query("conv-1")
	if err != nil {
		t.Fatal(err)
	}

	if item.Status != "completed" || item.MessageCount != 2 {
		t.Fatalf("archived meta data is %+v", item)
	}
	if len(messages) != 2 {
		t.Fatalf("transcript has %d messages, expected 2", len(messages))
	}
	if messages[1].Text != "Arr, hello" {
		t.Fatalf("transcript reply is %q", messages[1].Text)
	}

	if !archive.KnowsConversation("conv-1") {
		t.Fatal("archive denies knowing conv-1")
	}
	if archive.KnowsConversation("conv-2") {
		t.Fatal("archive invented conv-2")
	}
}

func TestArchiveOverwrite(t *testing.T) {
	archive := setupArchive(t)

	record := terminatedRecord("conv-1", time.Now())
	if err := archive.Push(record); err != nil {
		t.Fatal(err)
	}

	// The conversation continues and terminates again.
	record.Messages = append(record.Messages,
		message.NewMessage("conv-1", "alice", "bridge", "one more"))
	record.TerminatedAt = time.Now()

	if err := archive.Push(record); err != nil {
		t.Fatal(err)
	}

	item, messages, err := archive.Query("conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if item.MessageCount != 3 || len(messages) != 3 {
		t.Fatalf("follow-up exchange was not archived: %d meta, %d transcript",
			item.MessageCount, len(messages))
	}
}

func TestArchiveRecent(t *testing.T) {
	archive := setupArchive(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		record := terminatedRecord(
			string(rune('a'+i))+"-conv", base.Add(time.Duration(i)*time.Minute))
		if err := archive.Push(record); err != nil {
			t.Fatal(err)
		}
	}

	items, err := archive.Recent(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("Recent(3) returned %d items", len(items))
	}

	for i := 1; i < len(items); i++ {
		if items[i].TerminatedAt.After(items[i-1].TerminatedAt) {
			t.Fatal("Recent is not ordered newest first")
		}
	}
	if items[0].ConversationID != "e-conv" {
		t.Fatalf("newest item is %q", items[0].ConversationID)
	}
}

func TestArchiveRetention(t *testing.T) {
	archive := setupArchive(t)

	old := terminatedRecord("conv-old", time.Now().Add(-48*time.Hour))
	recent := terminatedRecord("conv-new", time.Now())

	if err := archive.Push(old); err != nil {
		t.Fatal(err)
	}
	if err := archive.Push(recent); err != nil {
		t.Fatal(err)
	}

	archive.DeleteOlderThan(24 * time.Hour)

	if archive.KnowsConversation("conv-old") {
		t.Fatal("expired conversation survived the retention sweep")
	}
	if !archive.KnowsConversation("conv-new") {
		t.Fatal("recent conversation was swept away")
	}
}
