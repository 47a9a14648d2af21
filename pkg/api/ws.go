// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/agentbridge/agentbridge-go/pkg/session"
)

// streamClientBacklog is the amount of unsent events buffered per client
// before it is considered too slow and disconnected.
const streamClientBacklog = 16

// EventStream pushes terminated conversation records to WebSocket clients.
type EventStream struct {
	upgrader websocket.Upgrader

	clientMutex sync.Mutex
	clients     map[*streamClient]struct{}
	closed      bool
}

type streamClient struct {
	conn *websocket.Conn
	send chan RecordJSON
}

// NewEventStream creates an EventStream without any connected clients.
func NewEventStream() *EventStream {
	return &EventStream{
		upgrader: websocket.Upgrader{},
		clients:  make(map[*streamClient]struct{}),
	}
}

// ServeHTTP upgrades an HTTP request to a WebSocket connection and registers
// it for event delivery.
func (stream *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := stream.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan RecordJSON, streamClientBacklog),
	}

	stream.clientMutex.Lock()
	if stream.closed {
		stream.clientMutex.Unlock()
		_ = conn.Close()
		return
	}
	stream.clients[client] = struct{}{}
	stream.clientMutex.Unlock()

	go stream.writer(client)
	go stream.reader(client)
}

// writer drains a client's send channel into its connection. It exits when
// the channel is closed or a write fails.
func (stream *EventStream) writer(client *streamClient) {
	for record := range client.send {
		if err := client.conn.WriteJSON(record); err != nil {
			log.WithError(err).Debug("Writing to WebSocket client errored")
			stream.drop(client)
			return
		}
	}

	_ = client.conn.Close()
}

// reader discards incoming frames and detects a gone-away client.
func (stream *EventStream) reader(client *streamClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			stream.drop(client)
			return
		}
	}
}

func (stream *EventStream) drop(client *streamClient) {
	stream.clientMutex.Lock()
	defer stream.clientMutex.Unlock()

	if _, ok := stream.clients[client]; ok {
		delete(stream.clients, client)
		close(client.send)
	}
	_ = client.conn.Close()
}

// Broadcast a terminated conversation record to all connected clients. Slow
// clients with a full backlog are disconnected instead of blocking.
func (stream *EventStream) Broadcast(record session.Record) {
	event := recordToJSON(record, true)

	stream.clientMutex.Lock()
	var overrun []*streamClient
	for client := range stream.clients {
		select {
		case client.send <- event:
		default:
			overrun = append(overrun, client)
		}
	}
	stream.clientMutex.Unlock()

	for _, client := range overrun {
		log.Debug("Disconnecting slow WebSocket client")
		stream.drop(client)
	}
}

// Close disconnects all clients. Broadcast becomes a no-op afterwards.
func (stream *EventStream) Close() {
	stream.clientMutex.Lock()
	defer stream.clientMutex.Unlock()

	stream.closed = true
	for client := range stream.clients {
		delete(stream.clients, client)
		close(client.send)
	}
}
