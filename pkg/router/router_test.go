// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentbridge/agentbridge-go/pkg/message"
	"github.com/agentbridge/agentbridge-go/pkg/registry"
	"github.com/agentbridge/agentbridge-go/pkg/session"
	"github.com/agentbridge/agentbridge-go/pkg/transform"
	"github.com/agentbridge/agentbridge-go/pkg/transport"
)

type routerFixture struct {
	router   *Router
	resolver *mockResolver
	delivery *mockDeliverer
	sessions *session.Store
}

func newFixture(fn transform.Func, conf Config) *routerFixture {
	if conf.LocalID == "" {
		conf.LocalID = "bridge"
	}

	resolver := &mockResolver{
		agents: map[message.AgentID]registry.Endpoint{
			"pirate": {Address: "127.0.0.1:4242", Version: message.WireVersion},
		},
	}
	delivery := &mockDeliverer{
		result: transport.DeliveryResult{Outcome: transport.Acknowledged, Attempts: 1},
	}
	sessions := session.NewStore(256)

	if fn == nil {
		fn = transform.Echo()
	}
	pipeline := transform.NewPipeline(fn, 5*time.Second)

	return &routerFixture{
		router:   New(conf, resolver, pipeline, delivery, sessions),
		resolver: resolver,
		delivery: delivery,
		sessions: sessions,
	}
}

func (f *routerFixture) submit(text string) (message.Message, error) {
	return f.router.Submit(context.Background(), Inbound{Sender: "caller", Text: text, ConversationID: "conv-1"})
}

func TestRouterLocalCompleted(t *testing.T) {
	pirate := func(text string) (string, error) {
		return "Arr, " + strings.TrimPrefix(text, "translate to pirate: "), nil
	}
	f := newFixture(pirate, Config{})

	reply, err := f.submit("translate to pirate: hello")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "Arr, hello" {
		t.Fatalf("reply is %q, expected %q", reply.Text, "Arr, hello")
	}

	record, err := f.sessions.Snapshot("conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != session.StatusCompleted {
		t.Fatalf("record ended %v, expected completed", record.Status)
	}
	if f.delivery.count() != 0 {
		t.Fatal("a local request must not be dispatched")
	}
}

func TestRouterUnknownRecipient(t *testing.T) {
	f := newFixture(nil, Config{})

	_, err := f.submit("@unknown_agent hi there")

	routeErr, ok := AsRouteError(err)
	if !ok {
		t.Fatalf("expected a RouteError, got %v", err)
	}
	if routeErr.Kind != UnknownRecipient {
		t.Fatalf("failure kind is %v, expected unknown recipient", routeErr.Kind)
	}

	if f.delivery.count() != 0 {
		t.Fatal("no delivery may be attempted for an unknown recipient")
	}

	record, _ := f.sessions.Snapshot("conv-1")
	if record.Status != session.StatusFailed {
		t.Fatalf("record ended %v, expected failed", record.Status)
	}

	// The sender receives an error reply, the message is not dropped.
	last := record.Messages[len(record.Messages)-1]
	if !strings.Contains(last.Text, "unknown recipient") {
		t.Fatalf("error reply %q misses the failure kind", last.Text)
	}
}

func TestRouterTransformThenRelay(t *testing.T) {
	f := newFixture(transform.Upper(), Config{})
	f.delivery.result = transport.DeliveryResult{Outcome: transport.Acknowledged, Attempts: 1}

	reply, err := f.submit("@pirate hello there")
	if err != nil {
		t.Fatal(err)
	}

	if f.delivery.count() != 1 {
		t.Fatalf("saw %d deliveries, expected 1", f.delivery.count())
	}

	req := f.delivery.last()
	if req.Payload != "HELLO THERE" {
		t.Fatalf("relayed payload is %q, transformation must run before dispatch", req.Payload)
	}
	if req.RecipientID != "pirate" || req.SenderID != "bridge" {
		t.Fatalf("relay addressing is %q -> %q", req.SenderID, req.RecipientID)
	}
	if req.ConversationID != "conv-1" {
		t.Fatalf("relay left the conversation: %q", req.ConversationID)
	}
	if req.Hops != 1 {
		t.Fatalf("relay carries %d hops, expected 1", req.Hops)
	}
	if req.Version != message.WireVersion {
		t.Fatalf("relay carries version %q", req.Version)
	}

	// Without a reply payload from the peer, the caller sees the relayed
	// text.
	if reply.Text != "HELLO THERE" {
		t.Fatalf("reply is %q", reply.Text)
	}

	record, _ := f.sessions.Snapshot("conv-1")
	if record.Status != session.StatusCompleted {
		t.Fatalf("record ended %v", record.Status)
	}
}

func TestRouterRelayPeerReply(t *testing.T) {
	f := newFixture(nil, Config{})
	f.delivery.result = transport.DeliveryResult{
		Outcome:  transport.Acknowledged,
		Reply:    "aye, got it",
		Attempts: 1,
	}

	reply, err := f.submit("@pirate hello")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "aye, got it" {
		t.Fatalf("reply is %q, expected the peer's answer", reply.Text)
	}
}

func TestRouterPeerUnreachable(t *testing.T) {
	f := newFixture(nil, Config{})
	f.delivery.result = transport.DeliveryResult{
		Outcome:  transport.Unreachable,
		Reason:   "connection refused",
		Attempts: 3,
	}

	_, err := f.submit("@pirate hello")

	routeErr, ok := AsRouteError(err)
	if !ok || routeErr.Kind != PeerUnreachable {
		t.Fatalf("expected peer unreachable, got %v", err)
	}

	record, _ := f.sessions.Snapshot("conv-1")
	if record.Status != session.StatusFailed {
		t.Fatalf("record ended %v", record.Status)
	}

	// The stale resolution must be dropped.
	if len(f.resolver.invalidated) != 1 || f.resolver.invalidated[0] != "pirate" {
		t.Fatalf("resolver invalidations: %v", f.resolver.invalidated)
	}
}

func TestRouterPeerRejected(t *testing.T) {
	f := newFixture(nil, Config{})
	f.delivery.result = transport.DeliveryResult{
		Outcome: transport.Rejected,
		Reason:  "unsupported protocol version",
	}

	_, err := f.submit("@pirate hello")

	routeErr, ok := AsRouteError(err)
	if !ok || routeErr.Kind != PeerRejected {
		t.Fatalf("expected peer rejected, got %v", err)
	}
	if len(f.resolver.invalidated) != 0 {
		t.Fatal("a rejection must not invalidate the resolution")
	}
}

func TestRouterRegistryUnavailable(t *testing.T) {
	f := newFixture(nil, Config{})
	f.resolver.err = registry.ErrUnavailable

	_, err := f.submit("@pirate hello")

	routeErr, ok := AsRouteError(err)
	if !ok || routeErr.Kind != RegistryUnavailable {
		t.Fatalf("expected registry unavailable, got %v", err)
	}
	if f.delivery.count() != 0 {
		t.Fatal("no delivery may be attempted without a resolution")
	}
}

func TestRouterTransformationFailure(t *testing.T) {
	failing := func(string) (string, error) {
		return "", fmt.Errorf("llm exploded")
	}
	f := newFixture(failing, Config{})

	_, err := f.submit("hello")

	routeErr, ok := AsRouteError(err)
	if !ok || routeErr.Kind != TransformationFailure {
		t.Fatalf("expected transformation failure, got %v", err)
	}

	record, _ := f.sessions.Snapshot("conv-1")
	if record.Status != session.StatusFailed {
		t.Fatalf("record ended %v", record.Status)
	}
}

func TestRouterHopLimit(t *testing.T) {
	f := newFixture(nil, Config{MaxHops: 2})

	_, err := f.router.Submit(context.Background(), Inbound{
		Sender:         "peer",
		ConversationID: "conv-1",
		Text:           "@pirate onwards",
		Hops:           2,
	})

	routeErr, ok := AsRouteError(err)
	if !ok || routeErr.Kind != PeerRejected {
		t.Fatalf("expected a hop limit rejection, got %v", err)
	}
	if f.delivery.count() != 0 {
		t.Fatal("an exhausted relay chain must not be dispatched")
	}
}

func TestRouterBackpressure(t *testing.T) {
	gate := make(chan struct{})
	blocked := func(text string) (string, error) {
		<-gate
		return text, nil
	}
	f := newFixture(blocked, Config{MaxInflight: 1})

	firstDone := make(chan struct{})
	go func() {
		_, _ = f.router.Submit(context.Background(), Inbound{Sender: "caller", ConversationID: "conv-a", Text: "hi"})
		close(firstDone)
	}()

	// Wait until the first message occupies the only worker slot.
	deadline := time.Now().Add(time.Second)
	for len(f.router.slots) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first message never occupied a worker slot")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := f.router.Submit(context.Background(), Inbound{Sender: "caller", ConversationID: "conv-b", Text: "hi"})
	if !errors.Is(err, ErrBacklogFull) {
		t.Fatalf("expected ErrBacklogFull, got %v", err)
	}

	close(gate)
	<-firstDone
}

func TestRouterCallerTimeout(t *testing.T) {
	slow := func(text string) (string, error) {
		time.Sleep(200 * time.Millisecond)
		return text, nil
	}
	f := newFixture(slow, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.router.Submit(ctx, Inbound{Sender: "caller", ConversationID: "conv-1", Text: "hi"})
	if !errors.Is(err, ErrSubmitTimeout) {
		t.Fatalf("expected ErrSubmitTimeout, got %v", err)
	}

	// The abandoned message still reaches a terminal status.
	deadline := time.Now().Add(2 * time.Second)
	for {
		record, snapErr := f.sessions.Snapshot("conv-1")
		if snapErr == nil && record.Status == session.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("abandoned message never reached a terminal status")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRouterLatestAcrossConcurrentConversations(t *testing.T) {
	f := newFixture(nil, Config{MaxInflight: 128})

	const n = 64

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			_, err := f.router.Submit(context.Background(), Inbound{
				Sender:         "caller",
				ConversationID: fmt.Sprintf("conv-%03d", i),
				Text:           fmt.Sprintf("message %d", i),
			})
			if err != nil {
				t.Errorf("submit %d errored: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	latest, err := f.sessions.Latest("")
	if err != nil {
		t.Fatal(err)
	}

	record, err := f.sessions.Snapshot(latest.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != session.StatusCompleted {
		t.Fatalf("latest points into a %v conversation", record.Status)
	}
	if record.Messages[len(record.Messages)-1].ID != latest.ID {
		t.Fatal("latest is not its conversation's final message")
	}
}

func TestRouterTerminalHook(t *testing.T) {
	f := newFixture(nil, Config{})

	recordChan := make(chan session.Record, 1)
	f.router.OnTerminal(func(record session.Record) {
		recordChan <- record
	})

	if _, err := f.submit("hello"); err != nil {
		t.Fatal(err)
	}

	select {
	case record := <-recordChan:
		if record.ConversationID != "conv-1" || record.Status != session.StatusCompleted {
			t.Fatalf("hook received %+v", record)
		}

	case <-time.After(time.Second):
		t.Fatal("terminal hook was never invoked")
	}
}

func TestRouterHandleRequest(t *testing.T) {
	f := newFixture(transform.Prefix("Arr, "), Config{})

	resp, retryAfter := f.router.HandleRequest(context.Background(), message.WireRequest{
		Version:        message.WireVersion,
		SenderID:       "alpha",
		ConversationID: "conv-1",
		Payload:        "hello",
		Hops:           1,
	})

	if retryAfter {
		t.Fatal("request was deferred")
	}
	if resp.Status != message.WireStatusOk || resp.Payload != "Arr, hello" {
		t.Fatalf("response is %+v", resp)
	}
}

func TestRouterHandleRequestFailure(t *testing.T) {
	f := newFixture(nil, Config{})

	resp, retryAfter := f.router.HandleRequest(context.Background(), message.WireRequest{
		Version:        message.WireVersion,
		SenderID:       "alpha",
		ConversationID: "conv-1",
		Payload:        "@nobody hi",
	})

	if retryAfter {
		t.Fatal("a failed message is not a backpressure case")
	}
	if resp.Status != message.WireStatusError || resp.ErrorDetail == "" {
		t.Fatalf("response is %+v", resp)
	}
}
