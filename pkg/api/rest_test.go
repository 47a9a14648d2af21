// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentbridge/agentbridge-go/pkg/message"
	"github.com/agentbridge/agentbridge-go/pkg/registry"
	"github.com/agentbridge/agentbridge-go/pkg/router"
	"github.com/agentbridge/agentbridge-go/pkg/session"
	"github.com/agentbridge/agentbridge-go/pkg/transform"
	"github.com/agentbridge/agentbridge-go/pkg/transport"
)

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, ref message.AgentID) (registry.Endpoint, error) {
	return registry.Endpoint{}, fmt.Errorf("%q: %w", ref, registry.ErrNotFound)
}

func (stubResolver) Invalidate(message.AgentID) {}

type stubDeliverer struct{}

func (stubDeliverer) Deliver(context.Context, registry.Endpoint, message.WireRequest) transport.DeliveryResult {
	return transport.DeliveryResult{Outcome: transport.Rejected, Reason: "no peers in this test"}
}

func setupAgent(t *testing.T, submitRate float64, submitBurst int) (*Agent, *session.Store) {
	t.Helper()

	sessions := session.NewStore(0)
	pipeline := transform.NewPipeline(transform.Prefix("Arr, "), time.Second)
	r := router.New(router.Config{LocalID: "bridge"},
		stubResolver{}, pipeline, stubDeliverer{}, sessions)

	agent := NewAgent("bridge", r, sessions, nil, submitRate, submitBurst)
	t.Cleanup(agent.Close)

	return agent, sessions
}

func submit(t *testing.T, agent *Agent, body SubmitRequest) (int, SubmitResponse) {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	agent.ServeHTTP(w, httptest.NewRequest(
		http.MethodPost, "/api/submit", bytes.NewReader(raw)))

	var response SubmitResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatal(err)
	}
	return w.Code, response
}

func TestAgentSubmit(t *testing.T) {
	agent, _ := setupAgent(t, 0, 0)

	code, response := submit(t, agent, SubmitRequest{Text: "hello"})
	if code != http.StatusOK {
		t.Fatalf("submit answered %d", code)
	}
	if response.Error != "" {
		t.Fatalf("submit errored: %s", response.Error)
	}
	if response.Message == nil || response.Message.Text != "Arr, hello" {
		t.Fatalf("submit reply is %+v", response.Message)
	}
}

func TestAgentSubmitEmptyText(t *testing.T) {
	agent, _ := setupAgent(t, 0, 0)

	if code, _ := submit(t, agent, SubmitRequest{}); code != http.StatusBadRequest {
		t.Fatalf("empty submit answered %d", code)
	}
}

func TestAgentSubmitFailureKind(t *testing.T) {
	agent, _ := setupAgent(t, 0, 0)

	code, response := submit(t, agent, SubmitRequest{Text: "@nobody hello"})
	if code != http.StatusOK {
		t.Fatalf("submit answered %d", code)
	}
	if response.Error == "" || response.FailureKind != "unknown recipient" {
		t.Fatalf("failure was reported as %+v", response)
	}
}

func TestAgentSubmitRateLimit(t *testing.T) {
	agent, _ := setupAgent(t, 1, 1)

	if code, _ := submit(t, agent, SubmitRequest{Text: "hello"}); code != http.StatusOK {
		t.Fatalf("first submit answered %d", code)
	}
	if code, _ := submit(t, agent, SubmitRequest{Text: "hello"}); code != http.StatusTooManyRequests {
		t.Fatalf("rate-limited submit answered %d", code)
	}
}

func TestAgentLatest(t *testing.T) {
	agent, _ := setupAgent(t, 0, 0)

	w := httptest.NewRecorder()
	agent.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/latest", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("latest on an empty bridge answered %d", w.Code)
	}

	_, response := submit(t, agent, SubmitRequest{Text: "ahoy", ConversationID: "conv-1"})

	for _, target := range []string{"/api/latest", "/api/latest?conversation_id=conv-1"} {
		w = httptest.NewRecorder()
		agent.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s answered %d", target, w.Code)
		}

		var latest LatestResponse
		if err := json.NewDecoder(w.Body).Decode(&latest); err != nil {
			t.Fatal(err)
		}
		if latest.Message == nil || latest.Message.ID != response.Message.ID {
			t.Fatalf("GET %s returned %+v, expected the reply", target, latest.Message)
		}
	}
}

func TestAgentConversationsAndHistory(t *testing.T) {
	agent, _ := setupAgent(t, 0, 0)

	_, _ = submit(t, agent, SubmitRequest{Text: "one", ConversationID: "conv-1"})
	_, _ = submit(t, agent, SubmitRequest{Text: "two", ConversationID: "conv-2"})

	w := httptest.NewRecorder()
	agent.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))

	var records []RecordJSON
	if err := json.NewDecoder(w.Body).Decode(&records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("listing contains %d conversations", len(records))
	}
	for _, record := range records {
		if len(record.Messages) != 0 {
			t.Fatal("listing must not inline transcripts")
		}
	}

	w = httptest.NewRecorder()
	agent.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history/conv-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("history answered %d", w.Code)
	}

	var history RecordJSON
	if err := json.NewDecoder(w.Body).Decode(&history); err != nil {
		t.Fatal(err)
	}
	if history.Status != "completed" || len(history.Messages) != 2 {
		t.Fatalf("history is %+v", history)
	}

	w = httptest.NewRecorder()
	agent.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history/conv-missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown history answered %d", w.Code)
	}
}

func TestAgentStatus(t *testing.T) {
	agent, _ := setupAgent(t, 0, 0)

	_, _ = submit(t, agent, SubmitRequest{Text: "hello"})

	w := httptest.NewRecorder()
	agent.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var status StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}

	if status.AgentID != "bridge" || status.WireVersion != message.WireVersion {
		t.Fatalf("status identifies as %+v", status)
	}
	if status.Conversations != 1 || status.Active != 0 {
		t.Fatalf("status counts %+v", status)
	}
}
