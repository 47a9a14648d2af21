// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"fmt"
	"time"

	"github.com/schollz/peerdiscovery"
	log "github.com/sirupsen/logrus"

	"github.com/agentbridge/agentbridge-go/pkg/message"
	"github.com/agentbridge/agentbridge-go/pkg/registry"
)

// Manager publishes and receives Announcements.
type Manager struct {
	localID  message.AgentID
	resolver *registry.Resolver

	stopChan4 chan struct{}
	stopChan6 chan struct{}
}

// NewManager creates and starts a Manager announcing this bridge's wire
// address. Discovered peers are seeded into the resolver.
func NewManager(
	localID message.AgentID, advertiseAddress string, resolver *registry.Resolver,
	announcementInterval time.Duration, ipv4, ipv6 bool) (*Manager, error) {

	manager := &Manager{
		localID:  localID,
		resolver: resolver,
	}
	if ipv4 {
		manager.stopChan4 = make(chan struct{})
	}
	if ipv6 {
		manager.stopChan6 = make(chan struct{})
	}

	log.WithFields(log.Fields{
		"interval": announcementInterval,
		"IPv4":     ipv4,
		"IPv6":     ipv6,
		"address":  advertiseAddress,
	}).Info("Starting discovery manager")

	msg, err := MarshalAnnouncements([]Announcement{{
		AgentID: localID.String(),
		Address: advertiseAddress,
		Version: message.WireVersion,
	}})
	if err != nil {
		return nil, err
	}

	sets := []struct {
		active           bool
		multicastAddress string
		stopChan         chan struct{}
		ipVersion        peerdiscovery.IPVersion
		notify           func(discovered peerdiscovery.Discovered)
	}{
		{ipv4, address4, manager.stopChan4, peerdiscovery.IPv4, manager.notify},
		{ipv6, address6, manager.stopChan6, peerdiscovery.IPv6, manager.notify6},
	}

	for _, set := range sets {
		if !set.active {
			continue
		}

		settings := peerdiscovery.Settings{
			Limit:            -1,
			Port:             fmt.Sprintf("%d", port),
			MulticastAddress: set.multicastAddress,
			Payload:          msg,
			Delay:            announcementInterval,
			TimeLimit:        -1,
			StopChan:         set.stopChan,
			AllowSelf:        true,
			IPVersion:        set.ipVersion,
			Notify:           set.notify,
		}

		discoverErrChan := make(chan error)
		go func() {
			_, discoverErr := peerdiscovery.Discover(settings)
			discoverErrChan <- discoverErr
		}()

		select {
		case discoverErr := <-discoverErrChan:
			if discoverErr != nil {
				return nil, discoverErr
			}

		case <-time.After(time.Second):
			break
		}
	}

	return manager, nil
}

func (manager *Manager) notify6(discovered peerdiscovery.Discovered) {
	discovered.Address = fmt.Sprintf("[%s]", discovered.Address)

	manager.notify(discovered)
}

func (manager *Manager) notify(discovered peerdiscovery.Discovered) {
	announcements, err := UnmarshalAnnouncements(discovered.Payload)
	if err != nil {
		log.WithError(err).WithField("peer", discovered.Address).
			Warn("Peer discovery failed to parse incoming package")

		return
	}

	for _, announcement := range announcements {
		manager.handleDiscovery(announcement, discovered.Address)
	}
}

func (manager *Manager) handleDiscovery(announcement Announcement, addr string) {
	logger := log.WithFields(log.Fields{
		"peer":    addr,
		"message": announcement,
	})
	logger.Debug("Peer discovery received a message")

	if err := announcement.Validate(); err != nil {
		logger.WithError(err).Debug("Ignoring invalid announcement")
		return
	}

	peerID := message.MustParseAgentID(announcement.AgentID)
	if peerID == manager.localID {
		return
	}

	manager.resolver.AddDiscovered(peerID, registry.Endpoint{
		Address: announcement.Address,
		Version: announcement.Version,
	})
}

// Close this Manager.
func (manager *Manager) Close() {
	for _, c := range []chan struct{}{manager.stopChan4, manager.stopChan6} {
		if c != nil {
			c <- struct{}{}
		}
	}
}
