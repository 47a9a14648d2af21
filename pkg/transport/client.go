// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/agentbridge/agentbridge-go/pkg/message"
	"github.com/agentbridge/agentbridge-go/pkg/registry"
)

// DeliveryOutcome classifies a delivery attempt's final state.
type DeliveryOutcome uint8

const (
	// Acknowledged means the peer accepted the request; Reply may carry
	// its answer.
	Acknowledged DeliveryOutcome = iota

	// Unreachable means the peer could not be reached within the retry
	// budget; a transient network condition.
	Unreachable

	// Rejected means the peer explicitly refused the request; never
	// retried.
	Rejected
)

func (outcome DeliveryOutcome) String() string {
	switch outcome {
	case Acknowledged:
		return "acknowledged"
	case Unreachable:
		return "unreachable"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// DeliveryResult is the Client's verdict for one message delivery.
type DeliveryResult struct {
	Outcome  DeliveryOutcome
	Reply    string
	Reason   string
	Attempts int
}

// Client sends wire requests to peer bridges.
type Client struct {
	http    *http.Client
	retries int
	backoff time.Duration
	media   string
}

// NewClient creates a transport Client. retries is the exact number of
// delivery attempts against an unreachable peer; values below one are raised
// to one. media selects the wire encoding, defaulting to JSON.
func NewClient(timeout time.Duration, retries int, media string) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retries < 1 {
		retries = 1
	}
	if media == "" {
		media = message.MediaJSON
	}

	return &Client{
		http:    &http.Client{Timeout: timeout},
		retries: retries,
		backoff: 100 * time.Millisecond,
		media:   media,
	}
}

// endpointURL derives the peer's /a2a URL from a resolved endpoint address.
func endpointURL(endpoint registry.Endpoint) string {
	address := endpoint.Address
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	return strings.TrimRight(address, "/") + "/a2a"
}

// Deliver sends the request to the endpoint and awaits the peer's verdict.
// A version recorded at the registry that differs from ours is rejected
// locally, without any network traffic.
func (client *Client) Deliver(ctx context.Context, endpoint registry.Endpoint, req message.WireRequest) DeliveryResult {
	if endpoint.Version != "" && endpoint.Version != message.WireVersion {
		return DeliveryResult{
			Outcome: Rejected,
			Reason:  fmt.Sprintf("protocol version mismatch: peer speaks %q, this bridge %q", endpoint.Version, message.WireVersion),
		}
	}

	body, err := message.EncodeWireRequest(req, client.media)
	if err != nil {
		return DeliveryResult{Outcome: Rejected, Reason: err.Error()}
	}

	var attemptErrs *multierror.Error

	for attempt := 0; attempt < client.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(client.backoff << uint(attempt-1)):
			case <-ctx.Done():
				attemptErrs = multierror.Append(attemptErrs, ctx.Err())
				// Only attempt requests were actually sent; the one this
				// backoff preceded never happened.
				return DeliveryResult{
					Outcome:  Unreachable,
					Reason:   attemptErrs.Error(),
					Attempts: attempt,
				}
			}
		}

		result, retry, err := client.deliverOnce(ctx, endpointURL(endpoint), body)
		if err == nil && !retry {
			result.Attempts = attempt + 1
			return result
		}

		if err != nil {
			attemptErrs = multierror.Append(attemptErrs, err)
		}

		log.WithFields(log.Fields{
			"endpoint": endpoint.Address,
			"attempt":  attempt + 1,
			"error":    err,
		}).Debug("Delivery attempt failed, peer unreachable")
	}

	return DeliveryResult{
		Outcome:  Unreachable,
		Reason:   attemptErrs.ErrorOrNil().Error(),
		Attempts: client.retries,
	}
}

// deliverOnce performs a single HTTP exchange. retry is set for transient
// conditions that count against the retry budget.
func (client *Client) deliverOnce(ctx context.Context, url string, body []byte) (result DeliveryResult, retry bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return DeliveryResult{}, false, err
	}
	httpReq.Header.Set("Content-Type", client.media)

	httpResp, err := client.http.Do(httpReq)
	if err != nil {
		return DeliveryResult{}, true, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxWireBodySize))
	if err != nil {
		return DeliveryResult{}, true, err
	}

	switch {
	case httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests:
		// Server-side trouble or backpressure, worth another attempt.
		return DeliveryResult{}, true, fmt.Errorf("peer answered status code %d", httpResp.StatusCode)

	case httpResp.StatusCode >= 400:
		reason := fmt.Sprintf("peer refused with status code %d", httpResp.StatusCode)
		if resp, decodeErr := message.DecodeWireResponse(respBody, client.media); decodeErr == nil && resp.ErrorDetail != "" {
			reason = resp.ErrorDetail
		}
		return DeliveryResult{Outcome: Rejected, Reason: reason}, false, nil
	}

	resp, err := message.DecodeWireResponse(respBody, client.media)
	if err != nil {
		return DeliveryResult{}, true, fmt.Errorf("parsing peer response: %v", err)
	}

	if resp.Status != message.WireStatusOk {
		return DeliveryResult{Outcome: Rejected, Reason: resp.ErrorDetail}, false, nil
	}

	return DeliveryResult{Outcome: Acknowledged, Reply: resp.Payload}, false, nil
}
