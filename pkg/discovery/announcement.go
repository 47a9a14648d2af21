// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/agentbridge/agentbridge-go/pkg/message"
)

// Announcement of one bridge's agent id and its wire endpoint.
type Announcement struct {
	AgentID string `cbor:"1,keyasint"`
	Address string `cbor:"2,keyasint"`
	Version string `cbor:"3,keyasint"`
}

// Validate checks an incoming Announcement's fields.
func (announcement Announcement) Validate() error {
	if _, err := message.ParseAgentID(announcement.AgentID); err != nil {
		return err
	}
	if announcement.Address == "" {
		return fmt.Errorf("announcement carries no address")
	}
	if announcement.Version != message.WireVersion {
		return fmt.Errorf("announcement speaks %q, not %q",
			announcement.Version, message.WireVersion)
	}
	return nil
}

func (announcement Announcement) String() string {
	return fmt.Sprintf("Announcement(%s,%s,%s)",
		announcement.AgentID, announcement.Address, announcement.Version)
}

// MarshalAnnouncements into a CBOR byte string.
func MarshalAnnouncements(announcements []Announcement) ([]byte, error) {
	return cbor.Marshal(announcements)
}

// UnmarshalAnnouncements creates a new array of Announcement based on a CBOR
// byte string.
func UnmarshalAnnouncements(data []byte) (announcements []Announcement, err error) {
	err = cbor.Unmarshal(data, &announcements)
	return
}
