// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"reflect"
	"testing"
)

func TestWireRequestEncodings(t *testing.T) {
	req := WireRequest{
		Version:        WireVersion,
		SenderID:       "alpha",
		RecipientID:    "beta",
		ConversationID: "conv-1",
		Payload:        "Arr, hello",
		Hops:           2,
	}

	for _, media := range []string{MediaJSON, MediaCBOR} {
		data, err := EncodeWireRequest(req, media)
		if err != nil {
			t.Fatalf("encoding as %s errored: %v", media, err)
		}

		req2, err := DecodeWireRequest(data, media)
		if err != nil {
			t.Fatalf("decoding as %s errored: %v", media, err)
		}

		if !reflect.DeepEqual(req, req2) {
			t.Fatalf("%s round trip differs: %v != %v", media, req, req2)
		}
	}
}

func TestWireUnknownMedia(t *testing.T) {
	if _, err := EncodeWireResponse(WireResponse{Status: WireStatusOk}, "text/plain"); err == nil {
		t.Fatal("encoding an unknown media type should error")
	}
	if _, err := DecodeWireResponse([]byte("{}"), "text/plain"); err == nil {
		t.Fatal("decoding an unknown media type should error")
	}
}

func TestMessageReply(t *testing.T) {
	orig := NewMessage("conv-1", "alice", "bob", "hi bob")
	reply := orig.Reply("bob", "hi alice")

	if reply.InReplyTo != orig.ID {
		t.Errorf("reply's InReplyTo is %q, expected %q", reply.InReplyTo, orig.ID)
	}
	if reply.Recipient != orig.Sender || reply.Sender != AgentID("bob") {
		t.Errorf("reply addressing is wrong: %q -> %q", reply.Sender, reply.Recipient)
	}
	if reply.ConversationID != orig.ConversationID {
		t.Errorf("reply left the conversation: %q", reply.ConversationID)
	}
	if reply.ID == orig.ID {
		t.Error("reply must be a new Message, not a mutation")
	}
}
