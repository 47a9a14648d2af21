// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/agentbridge/agentbridge-go/pkg/message"
)

// maxWireBodySize bounds a wire request or response body.
const maxWireBodySize = 1 << 20

// Handler processes a validated inbound wire request. retryAfter signals
// backpressure: the caller should try again later, the request itself was
// not at fault.
type Handler interface {
	HandleRequest(ctx context.Context, req message.WireRequest) (resp message.WireResponse, retryAfter bool)
}

// Server accepts agent-to-agent requests on /a2a and answers them
// synchronously. Requests with a foreign protocol version or an exhausted
// hop budget are rejected before they reach the Handler.
type Server struct {
	handler Handler
	maxHops int

	srv *http.Server

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewServer creates a transport Server listening on listenAddress, passing
// valid requests to the handler. Requests that have already passed maxHops
// relays are rejected.
func NewServer(listenAddress string, handler Handler, maxHops int) *Server {
	if maxHops < 1 {
		maxHops = 8
	}

	server := &Server{
		handler: handler,
		maxHops: maxHops,

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	router := mux.NewRouter()
	router.HandleFunc("/a2a", server.handleA2A).Methods(http.MethodPost)

	server.srv = &http.Server{
		Addr:    listenAddress,
		Handler: router,
	}

	return server
}

// Start launches the Server. The returned error only covers startup itself;
// later listener failures are logged.
func (server *Server) Start() error {
	errChan := make(chan error)

	go func() {
		errChan <- server.srv.ListenAndServe()
	}()

	go func() {
		select {
		case err := <-errChan:
			log.WithError(err).Error("Transport server stopped listening")

		case <-server.stopSyn:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := server.srv.Shutdown(ctx); err != nil {
				log.WithError(err).Warn("Shutting down transport server errored")
			}

			close(server.stopAck)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Close shuts the Server down.
func (server *Server) Close() {
	close(server.stopSyn)
	<-server.stopAck
}

// requestMedia derives the wire encoding from the Content-Type header.
func requestMedia(r *http.Request) (string, error) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return message.MediaJSON, nil
	}

	media := strings.TrimSpace(strings.Split(contentType, ";")[0])
	switch media {
	case message.MediaJSON, message.MediaCBOR:
		return media, nil
	default:
		return "", fmt.Errorf("unsupported media type %q", media)
	}
}

func (server *Server) handleA2A(w http.ResponseWriter, r *http.Request) {
	media, err := requestMedia(r)
	if err != nil {
		server.reject(w, message.MediaJSON, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWireBodySize))
	if err != nil {
		server.reject(w, media, http.StatusBadRequest, "reading request body failed")
		return
	}

	req, err := message.DecodeWireRequest(body, media)
	if err != nil {
		server.reject(w, media, http.StatusBadRequest, fmt.Sprintf("malformed wire request: %v", err))
		return
	}

	if req.Version != message.WireVersion {
		server.reject(w, media, http.StatusBadRequest,
			fmt.Sprintf("unsupported protocol version %q, this bridge speaks %q", req.Version, message.WireVersion))
		return
	}

	if req.Hops > server.maxHops {
		log.WithFields(log.Fields{
			"sender": req.SenderID,
			"hops":   req.Hops,
			"limit":  server.maxHops,
		}).Warn("Rejecting wire request, hop limit exceeded")

		server.reject(w, media, http.StatusBadRequest,
			fmt.Sprintf("hop limit of %d exceeded", server.maxHops))
		return
	}

	resp, retryAfter := server.handler.HandleRequest(r.Context(), req)
	if retryAfter {
		server.reject(w, media, http.StatusTooManyRequests, resp.ErrorDetail)
		return
	}

	server.respond(w, media, http.StatusOK, resp)
}

func (server *Server) reject(w http.ResponseWriter, media string, statusCode int, detail string) {
	server.respond(w, media, statusCode, message.WireResponse{
		Status:      message.WireStatusError,
		ErrorDetail: detail,
	})
}

func (server *Server) respond(w http.ResponseWriter, media string, statusCode int, resp message.WireResponse) {
	data, err := message.EncodeWireResponse(resp, media)
	if err != nil {
		log.WithError(err).Error("Encoding wire response errored")

		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", media)
	w.WriteHeader(statusCode)

	if _, err := w.Write(data); err != nil {
		log.WithError(err).Warn("Writing wire response errored")
	}
}
