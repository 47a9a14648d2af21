// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/agentbridge/agentbridge-go/pkg/message"
	"github.com/agentbridge/agentbridge-go/pkg/registry"
	"github.com/agentbridge/agentbridge-go/pkg/session"
	"github.com/agentbridge/agentbridge-go/pkg/transform"
	"github.com/agentbridge/agentbridge-go/pkg/transport"
)

// Resolver is the address resolution contract the Router depends on.
type Resolver interface {
	Resolve(ctx context.Context, ref message.AgentID) (registry.Endpoint, error)
	Invalidate(id message.AgentID)
}

// Deliverer is the transport contract the Router dispatches relays through.
type Deliverer interface {
	Deliver(ctx context.Context, endpoint registry.Endpoint, req message.WireRequest) transport.DeliveryResult
}

// Config bundles the Router's tunables.
type Config struct {
	// LocalID is this bridge's own agent id.
	LocalID message.AgentID

	// MaxInflight bounds concurrently processed messages; further
	// submissions are answered with ErrBacklogFull.
	MaxInflight int

	// MaxHops bounds relay chains. A relay whose next hop would exceed
	// this is failed locally instead of dispatched.
	MaxHops int

	// ProcessTimeout bounds one message's processing, independent of how
	// long the synchronous caller keeps waiting.
	ProcessTimeout time.Duration
}

// Inbound is one message entering the Router, from the local API surface or
// from a remote peer.
type Inbound struct {
	Sender         message.AgentID
	ConversationID string
	Text           string
	Hops           int
}

// Router is the bridge's message state machine.
type Router struct {
	localID        message.AgentID
	maxHops        int
	processTimeout time.Duration

	resolver  Resolver
	pipeline  *transform.Pipeline
	deliverer Deliverer
	sessions  *session.Store

	// slots is the worker pool: one buffered slot per in-flight message.
	slots chan struct{}

	terminalHooks []func(session.Record)
}

// New creates a Router from its constructor-injected collaborators.
func New(conf Config, resolver Resolver, pipeline *transform.Pipeline, deliverer Deliverer, sessions *session.Store) *Router {
	if conf.MaxInflight < 1 {
		conf.MaxInflight = 64
	}
	if conf.MaxHops < 1 {
		conf.MaxHops = 8
	}
	if conf.ProcessTimeout <= 0 {
		conf.ProcessTimeout = time.Minute
	}

	return &Router{
		localID:        conf.LocalID,
		maxHops:        conf.MaxHops,
		processTimeout: conf.ProcessTimeout,

		resolver:  resolver,
		pipeline:  pipeline,
		deliverer: deliverer,
		sessions:  sessions,

		slots: make(chan struct{}, conf.MaxInflight),
	}
}

// OnTerminal registers a hook invoked with the conversation's Record after
// each terminal transition, e.g., for archival or event streaming. Hooks run
// in their own goroutine and must not be registered after messages flow.
func (router *Router) OnTerminal(hook func(session.Record)) {
	router.terminalHooks = append(router.terminalHooks, hook)
}

// Submit enters a message into the Router and waits for its verdict. The
// returned Message is the reply for the caller; a failure is reported as a
// *RouteError. ErrBacklogFull rejects the message before processing,
// ErrSubmitTimeout abandons the wait while processing continues.
func (router *Router) Submit(ctx context.Context, in Inbound) (message.Message, error) {
	select {
	case router.slots <- struct{}{}:
	default:
		log.WithFields(log.Fields{
			"sender":   in.Sender,
			"inflight": len(router.slots),
		}).Warn("Router rejects message, worker pool is exhausted")

		return message.Message{}, ErrBacklogFull
	}

	type verdict struct {
		reply message.Message
		err   error
	}
	verdictChan := make(chan verdict, 1)

	go func() {
		defer func() { <-router.slots }()

		reply, err := router.process(in)
		verdictChan <- verdict{reply, err}
	}()

	select {
	case v := <-verdictChan:
		return v.reply, v.err

	case <-ctx.Done():
		// The record still reaches a terminal status; only this caller
		// stops waiting.
		return message.Message{}, fmt.Errorf("%w: %v", ErrSubmitTimeout, ctx.Err())
	}
}

// process runs one message through the state machine under the Router's own
// deadline. Messages of the same conversation are serialized in arrival
// order through the session lock.
func (router *Router) process(in Inbound) (message.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), router.processTimeout)
	defer cancel()

	conversationID := in.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	unlock := router.sessions.Lock(conversationID)
	defer unlock()

	msg := message.NewMessage(conversationID, in.Sender, router.localID, in.Text)
	router.sessions.Append(msg)

	logger := log.WithFields(log.Fields{
		"message":      msg.ID,
		"conversation": conversationID,
		"sender":       in.Sender,
	})
	logger.Debug("Router received message")

	ref, payload, found := message.ParseReference(in.Text)
	if !found || payload == "" {
		logger.Debug("Classified message as local request")
		return router.processLocal(ctx, msg)
	}

	logger.WithField("recipient", ref).Debug("Classified message as relay")
	return router.processRelay(ctx, msg, ref, payload, in.Hops)
}

// processLocal answers a message with the local transformation only.
func (router *Router) processLocal(ctx context.Context, msg message.Message) (message.Message, error) {
	result := router.pipeline.Transform(ctx, msg.Text)
	if !result.Succeeded {
		return router.fail(msg, &RouteError{Kind: TransformationFailure, Detail: result.ErrorDetail})
	}

	return router.complete(msg, result.Output), nil
}

// processRelay resolves the referenced agent, transforms the payload and
// dispatches it. The relayed text already reflects the local transformation;
// transform-then-relay is the product contract.
func (router *Router) processRelay(ctx context.Context, msg message.Message, ref message.AgentID, payload string, hops int) (message.Message, error) {
	if hops+1 > router.maxHops {
		return router.fail(msg, &RouteError{
			Kind:   PeerRejected,
			Detail: fmt.Sprintf("relay chain exceeds the hop limit of %d", router.maxHops),
		})
	}

	endpoint, err := router.resolver.Resolve(ctx, ref)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return router.fail(msg, &RouteError{
			Kind:   UnknownRecipient,
			Detail: fmt.Sprintf("no agent %q is registered", ref),
		})

	case errors.Is(err, registry.ErrUnavailable):
		return router.fail(msg, &RouteError{
			Kind:   RegistryUnavailable,
			Detail: fmt.Sprintf("cannot resolve %q, registry is unavailable", ref),
		})

	case err != nil:
		return router.fail(msg, &RouteError{
			Kind:   UnknownRecipient,
			Detail: fmt.Sprintf("resolving %q errored: %v", ref, err),
		})
	}

	result := router.pipeline.Transform(ctx, payload)
	if !result.Succeeded {
		return router.fail(msg, &RouteError{Kind: TransformationFailure, Detail: result.ErrorDetail})
	}

	delivery := router.deliverer.Deliver(ctx, endpoint, message.WireRequest{
		Version:        message.WireVersion,
		SenderID:       router.localID.String(),
		RecipientID:    ref.String(),
		ConversationID: msg.ConversationID,
		Payload:        result.Output,
		Hops:           hops + 1,
	})

	switch delivery.Outcome {
	case transport.Acknowledged:
		replyText := delivery.Reply
		if replyText == "" {
			replyText = result.Output
		}
		return router.complete(msg, replyText), nil

	case transport.Unreachable:
		// The cached endpoint may be stale; drop it so the next attempt
		// resolves freshly.
		router.resolver.Invalidate(ref)

		return router.fail(msg, &RouteError{
			Kind:   PeerUnreachable,
			Detail: fmt.Sprintf("%q did not answer after %d attempts: %s", ref, delivery.Attempts, delivery.Reason),
		})

	default:
		return router.fail(msg, &RouteError{
			Kind:   PeerRejected,
			Detail: fmt.Sprintf("%q refused the message: %s", ref, delivery.Reason),
		})
	}
}

// complete appends the reply and drives the record to its completed status.
func (router *Router) complete(msg message.Message, replyText string) message.Message {
	reply := msg.Reply(router.localID, replyText)

	router.sessions.AppendReply(reply)
	router.sessions.Complete(msg.ConversationID)

	log.WithFields(log.Fields{
		"message":      msg.ID,
		"conversation": msg.ConversationID,
	}).Info("Message completed")

	router.notifyTerminal(msg.ConversationID)

	return reply
}

// fail appends a structured error reply and drives the record to its failed
// status. The original sender always receives an indication, never a silent
// drop.
func (router *Router) fail(msg message.Message, routeErr *RouteError) (message.Message, error) {
	reply := msg.Reply(router.localID, "error: "+routeErr.Error())

	router.sessions.AppendReply(reply)
	router.sessions.Fail(msg.ConversationID, routeErr.Error())

	log.WithFields(log.Fields{
		"message":      msg.ID,
		"conversation": msg.ConversationID,
		"kind":         routeErr.Kind,
		"detail":       routeErr.Detail,
	}).Info("Message failed")

	router.notifyTerminal(msg.ConversationID)

	return message.Message{}, routeErr
}

func (router *Router) notifyTerminal(conversationID string) {
	if len(router.terminalHooks) == 0 {
		return
	}

	record, err := router.sessions.Snapshot(conversationID)
	if err != nil {
		log.WithError(err).WithField("conversation", conversationID).
			Warn("Snapshotting terminated conversation errored")
		return
	}

	for _, hook := range router.terminalHooks {
		go hook(record)
	}
}

// HandleRequest implements transport.Handler, feeding peer requests into the
// Router and answering them synchronously.
func (router *Router) HandleRequest(ctx context.Context, req message.WireRequest) (message.WireResponse, bool) {
	sender, err := message.ParseAgentID(req.SenderID)
	if err != nil {
		return message.WireResponse{
			Status:      message.WireStatusError,
			ErrorDetail: fmt.Sprintf("invalid sender: %v", err),
		}, false
	}

	reply, err := router.Submit(ctx, Inbound{
		Sender:         sender,
		ConversationID: req.ConversationID,
		Text:           req.Payload,
		Hops:           req.Hops,
	})

	switch {
	case errors.Is(err, ErrBacklogFull):
		return message.WireResponse{
			Status:      message.WireStatusError,
			ErrorDetail: err.Error(),
		}, true

	case err != nil:
		return message.WireResponse{
			Status:      message.WireStatusError,
			ErrorDetail: err.Error(),
		}, false

	default:
		return message.WireResponse{
			Status:  message.WireStatusOk,
			Payload: reply.Text,
		}, false
	}
}
