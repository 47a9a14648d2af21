// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package registry

import "fmt"

// Endpoint is a resolved network address of a peer bridge.
type Endpoint struct {
	// Address is the peer's "host:port".
	Address string

	// Version is the wire protocol version the registry recorded for this
	// peer. Delivery to a peer with a different version is rejected.
	Version string
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s (%s)", e.Address, e.Version)
}
