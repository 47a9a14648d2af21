// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

import "strings"

// referenceMarker starts an embedded agent reference within free text.
const referenceMarker = '@'

// isIdentByte reports if b may appear in an agent identifier.
func isIdentByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '.' || b == '_' || b == '-':
		return true
	default:
		return false
	}
}

// ParseReference extracts the first embedded agent reference from raw text.
// A reference is the marker character followed by an identifier token,
// terminated by whitespace or end of input. The marker must stand at the
// start of the text or after whitespace; an "@" inside a word, e.g. a mail
// address, is not a reference.
//
// The returned payload is the text with the reference removed and surrounding
// whitespace trimmed. found is false if no reference exists, in which case
// the text is to be handled locally.
func ParseReference(text string) (ref AgentID, payload string, found bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != referenceMarker {
			continue
		}
		if i > 0 && !isSpaceByte(text[i-1]) {
			continue
		}

		end := i + 1
		for end < len(text) && isIdentByte(text[end]) {
			end++
		}
		if end == i+1 {
			// lone marker, keep scanning
			continue
		}

		ref = AgentID(text[i+1 : end])
		payload = strings.TrimSpace(text[:i] + " " + text[end:])
		return ref, payload, true
	}

	return "", "", false
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
