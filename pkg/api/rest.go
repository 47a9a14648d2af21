// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/agentbridge/agentbridge-go/pkg/message"
	"github.com/agentbridge/agentbridge-go/pkg/router"
	"github.com/agentbridge/agentbridge-go/pkg/session"
	"github.com/agentbridge/agentbridge-go/pkg/storage"
)

// Agent is the bridge's local application surface, bound to an HTTP endpoint
// by the caller.
type Agent struct {
	localID message.AgentID

	router   *router.Router
	sessions *session.Store
	archive  *storage.Archive

	limiter *rate.Limiter
	stream  *EventStream

	mux *mux.Router
}

// NewAgent creates the local API agent. archive may be nil if no archival is
// configured; /api/history answers 404 then. submitRate/submitBurst bound
// the /api/submit endpoint, zero values disable the limit.
func NewAgent(localID message.AgentID, r *router.Router, sessions *session.Store, archive *storage.Archive, submitRate float64, submitBurst int) *Agent {
	var limiter *rate.Limiter
	if submitRate > 0 {
		if submitBurst < 1 {
			submitBurst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(submitRate), submitBurst)
	}

	agent := &Agent{
		localID: localID,

		router:   r,
		sessions: sessions,
		archive:  archive,

		limiter: limiter,
		stream:  NewEventStream(),

		mux: mux.NewRouter(),
	}

	agent.mux.HandleFunc("/api/submit", agent.handleSubmit).Methods(http.MethodPost)
	agent.mux.HandleFunc("/api/latest", agent.handleLatest).Methods(http.MethodGet)
	agent.mux.HandleFunc("/api/conversations", agent.handleConversations).Methods(http.MethodGet)
	agent.mux.HandleFunc("/api/history/{conversation}", agent.handleHistory).Methods(http.MethodGet)
	agent.mux.HandleFunc("/api/status", agent.handleStatus).Methods(http.MethodGet)
	agent.mux.HandleFunc("/ws", agent.stream.ServeHTTP)

	// Every terminated exchange is pushed to WebSocket observers.
	r.OnTerminal(agent.stream.Broadcast)

	return agent
}

// ServeHTTP is a http.Handler to be bound to a HTTP endpoint.
func (agent *Agent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	agent.mux.ServeHTTP(w, r)
}

// Close shuts down the WebSocket event stream.
func (agent *Agent) Close() {
	agent.stream.Close()
}

func (agent *Agent) writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", message.MediaJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("Writing API response errored")
	}
}

// handleSubmit processes /api/submit POST requests.
func (agent *Agent) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if agent.limiter != nil && !agent.limiter.Allow() {
		agent.writeJSON(w, http.StatusTooManyRequests,
			SubmitResponse{Error: "submit rate exceeded, try again later"})
		return
	}

	var submitRequest SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&submitRequest); err != nil {
		agent.writeJSON(w, http.StatusBadRequest, SubmitResponse{Error: err.Error()})
		return
	}
	if submitRequest.Text == "" {
		agent.writeJSON(w, http.StatusBadRequest, SubmitResponse{Error: "text must not be empty"})
		return
	}

	reply, err := agent.router.Submit(r.Context(), router.Inbound{
		Sender:         agent.localID,
		ConversationID: submitRequest.ConversationID,
		Text:           submitRequest.Text,
	})

	switch {
	case errors.Is(err, router.ErrBacklogFull):
		agent.writeJSON(w, http.StatusTooManyRequests, SubmitResponse{Error: err.Error()})

	case errors.Is(err, router.ErrSubmitTimeout):
		agent.writeJSON(w, http.StatusGatewayTimeout, SubmitResponse{Error: err.Error()})

	case err != nil:
		response := SubmitResponse{Error: err.Error()}
		if routeErr, ok := router.AsRouteError(err); ok {
			response.FailureKind = routeErr.Kind.String()
		}
		agent.writeJSON(w, http.StatusOK, response)

	default:
		agent.writeJSON(w, http.StatusOK, SubmitResponse{Message: messageToJSON(reply)})
	}
}

// handleLatest processes /api/latest GET requests. Without a conversation_id
// parameter the globally latest terminated message is returned.
func (agent *Agent) handleLatest(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")

	latest, err := agent.sessions.Latest(conversationID)
	if err != nil {
		agent.writeJSON(w, http.StatusNotFound, LatestResponse{Error: err.Error()})
		return
	}

	agent.writeJSON(w, http.StatusOK, LatestResponse{Message: messageToJSON(latest)})
}

// handleConversations processes /api/conversations GET requests. The active
// query parameter restricts the listing to pending conversations.
func (agent *Agent) handleConversations(w http.ResponseWriter, r *http.Request) {
	var records []session.Record
	if r.URL.Query().Get("active") != "" {
		records = agent.sessions.Active()
	} else {
		records = agent.sessions.Records()
	}

	response := make([]RecordJSON, 0, len(records))
	for _, record := range records {
		response = append(response, recordToJSON(record, false))
	}

	agent.writeJSON(w, http.StatusOK, response)
}

// handleHistory processes /api/history/{conversation} GET requests, looking
// into the live session store first and the archive second.
func (agent *Agent) handleHistory(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["conversation"]

	if record, err := agent.sessions.Snapshot(conversationID); err == nil {
		agent.writeJSON(w, http.StatusOK, recordToJSON(record, true))
		return
	}

	if agent.archive != nil {
		if item, messages, err := agent.archive.Query(conversationID); err == nil {
			record := RecordJSON{
				ConversationID: item.ConversationID,
				Status:         item.Status,
				ErrorDetail:    item.ErrorDetail,
				StartedAt:      item.StartedAt,
				TerminatedAt:   &item.TerminatedAt,
			}
			for _, msg := range messages {
				record.Messages = append(record.Messages, messageToJSON(msg))
			}

			agent.writeJSON(w, http.StatusOK, record)
			return
		}
	}

	agent.writeJSON(w, http.StatusNotFound,
		map[string]string{"error": "no such conversation"})
}

// handleStatus processes /api/status GET requests.
func (agent *Agent) handleStatus(w http.ResponseWriter, r *http.Request) {
	records := agent.sessions.Records()

	active := 0
	for _, record := range records {
		if record.Status == session.StatusPending {
			active++
		}
	}

	agent.writeJSON(w, http.StatusOK, StatusResponse{
		AgentID:       agent.localID.String(),
		WireVersion:   message.WireVersion,
		Conversations: len(records),
		Active:        active,
	})
}
