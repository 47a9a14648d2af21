// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

import "testing"

func TestParseReference(t *testing.T) {
	tests := []struct {
		text    string
		ref     AgentID
		payload string
		found   bool
	}{
		{"@pirate hello there", "pirate", "hello there", true},
		{"hello @pirate there", "pirate", "hello there", true},
		{"hello there @pirate", "pirate", "hello there", true},
		{"@agent-7.x_y hi", "agent-7.x_y", "hi", true},
		{"@unknown_agent hi there", "unknown_agent", "hi there", true},
		{"translate to pirate: hello", "", "", false},
		{"mail me at foo@bar please", "", "", false},
		{"a lone @ marker", "", "", false},
		{"@Upper and @lower", "Upper", "and @lower", true},
		{"@solo", "solo", "", true},
		{"", "", "", false},
	}

	for _, tt := range tests {
		ref, payload, found := ParseReference(tt.text)
		if found != tt.found {
			t.Errorf("ParseReference(%q) found = %v, expected %v", tt.text, found, tt.found)
			continue
		}
		if ref != tt.ref {
			t.Errorf("ParseReference(%q) ref = %q, expected %q", tt.text, ref, tt.ref)
		}
		if payload != tt.payload {
			t.Errorf("ParseReference(%q) payload = %q, expected %q", tt.text, payload, tt.payload)
		}
	}
}

func TestParseReferenceCaseSensitive(t *testing.T) {
	refA, _, _ := ParseReference("@Alice hi")
	refB, _, _ := ParseReference("@alice hi")

	if refA == refB {
		t.Fatalf("references must be case-sensitive, got %q twice", refA)
	}
}

func TestParseAgentID(t *testing.T) {
	for _, valid := range []string{"a", "agent-1", "A.b_C-9"} {
		if _, err := ParseAgentID(valid); err != nil {
			t.Errorf("ParseAgentID(%q) errored: %v", valid, err)
		}
	}

	for _, invalid := range []string{"", "with space", "umläut", "semi;colon"} {
		if _, err := ParseAgentID(invalid); err == nil {
			t.Errorf("ParseAgentID(%q) should have errored", invalid)
		}
	}
}
