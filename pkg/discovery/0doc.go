// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery announces this bridge on the local network through UDP
// multicast packages and seeds the resolver with discovered peers.
package discovery

const (
	// address4 is the default multicast IPv4 address used for discovery.
	address4 = "224.23.23.42"

	// address6 is the default multicast IPv6 address used for discovery.
	address6 = "ff02::42"

	// port is the default multicast UDP port used for discovery.
	port = 35042
)
