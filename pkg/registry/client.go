// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/agentbridge/agentbridge-go/pkg/message"
)

// Lookup errors, to be inspected with errors.Is.
var (
	// ErrNotFound means the registry has no entry for the requested agent.
	ErrNotFound = errors.New("agent is not registered")

	// ErrUnavailable means the registry could not be reached within the
	// retry budget. This is a soft failure; callers usually degrade it to
	// an unknown recipient.
	ErrUnavailable = errors.New("registry is unavailable")
)

// entryBody is the JSON representation of one registry entry.
type entryBody struct {
	AgentID         string `json:"agent_id"`
	Endpoint        string `json:"endpoint"`
	ProtocolVersion string `json:"protocol_version"`
}

// Client talks to the external registry service.
type Client struct {
	baseURL string
	http    *http.Client
	retries int
	backoff time.Duration
}

// NewClient creates a registry Client for the given base URL. retries is the
// number of lookup attempts against an unreachable registry before giving up;
// values below one are raised to one.
func NewClient(baseURL string, timeout time.Duration, retries int) *Client {
	if retries < 1 {
		retries = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		retries: retries,
		backoff: 250 * time.Millisecond,
	}
}

func (client *Client) entryURL(id message.AgentID) string {
	return fmt.Sprintf("%s/agents/%s", client.baseURL, url.PathEscape(id.String()))
}

// Lookup queries the registry for an agent's endpoint. A missing entry is
// ErrNotFound and not retried; transport failures and server errors are
// retried with exponential backoff until the retry budget is exhausted,
// then reported as ErrUnavailable.
func (client *Client) Lookup(ctx context.Context, id message.AgentID) (Endpoint, error) {
	if client == nil {
		return Endpoint{}, fmt.Errorf("%w: no registry is configured", ErrNotFound)
	}

	var attemptErrs *multierror.Error

	for attempt := 0; attempt < client.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(client.backoff << uint(attempt-1)):
			case <-ctx.Done():
				return Endpoint{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}

		endpoint, err := client.lookupOnce(ctx, id)
		if err == nil {
			return endpoint, nil
		}
		if errors.Is(err, ErrNotFound) {
			return Endpoint{}, err
		}

		log.WithFields(log.Fields{
			"agent":   id,
			"attempt": attempt + 1,
			"error":   err,
		}).Debug("Registry lookup attempt errored")

		attemptErrs = multierror.Append(attemptErrs, err)
	}

	return Endpoint{}, fmt.Errorf("%w: %v", ErrUnavailable, attemptErrs.ErrorOrNil())
}

func (client *Client) lookupOnce(ctx context.Context, id message.AgentID) (Endpoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.entryURL(id), nil)
	if err != nil {
		return Endpoint{}, err
	}

	resp, err := client.http.Do(req)
	if err != nil {
		return Endpoint{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Endpoint{}, ErrNotFound

	case resp.StatusCode != http.StatusOK:
		return Endpoint{}, fmt.Errorf("registry answered status code %d", resp.StatusCode)
	}

	var body entryBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Endpoint{}, err
	}

	return Endpoint{Address: body.Endpoint, Version: body.ProtocolVersion}, nil
}

// Register announces this bridge's own agent id and endpoint to the registry.
// Registration failures are expected to be treated as soft by the caller.
func (client *Client) Register(ctx context.Context, id message.AgentID, endpoint Endpoint) error {
	body, err := json.Marshal(entryBody{
		AgentID:         id.String(),
		Endpoint:        endpoint.Address,
		ProtocolVersion: endpoint.Version,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, client.entryURL(id), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", message.MediaJSON)

	resp, err := client.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("registry answered status code %d", resp.StatusCode)
	}

	log.WithFields(log.Fields{
		"agent":    id,
		"endpoint": endpoint,
	}).Info("Registered agent at the registry")

	return nil
}
