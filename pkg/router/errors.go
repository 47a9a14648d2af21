// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package router

import (
	"errors"
	"fmt"
)

// FailureKind is the taxonomy of recoverable message failures. All of these
// are converted into a structured error reply at the Router boundary; none
// propagate as a process fault.
type FailureKind uint8

const (
	// UnknownRecipient means the referenced agent could not be resolved.
	UnknownRecipient FailureKind = iota

	// PeerUnreachable means the resolved endpoint did not answer within
	// the delivery retry budget.
	PeerUnreachable

	// PeerRejected means the peer explicitly refused the message.
	PeerRejected

	// TransformationFailure means the transformation function errored,
	// panicked or exceeded its budget.
	TransformationFailure

	// RegistryUnavailable means the registry could not be consulted; the
	// effect on the sender equals an unknown recipient.
	RegistryUnavailable
)

func (kind FailureKind) String() string {
	switch kind {
	case UnknownRecipient:
		return "unknown recipient"
	case PeerUnreachable:
		return "peer unreachable"
	case PeerRejected:
		return "peer rejected"
	case TransformationFailure:
		return "transformation failure"
	case RegistryUnavailable:
		return "registry unavailable"
	default:
		return "unknown failure"
	}
}

// RouteError is a failed message's verdict, carrying its FailureKind and a
// human-readable detail.
type RouteError struct {
	Kind   FailureKind
	Detail string
}

func (e *RouteError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// AsRouteError unwraps a RouteError, if err carries one.
func AsRouteError(err error) (*RouteError, bool) {
	var routeErr *RouteError
	if errors.As(err, &routeErr) {
		return routeErr, true
	}
	return nil, false
}

// ErrBacklogFull is the backpressure rejection for too many in-flight
// messages. It is deliberately outside the FailureKind taxonomy: the message
// was not processed at all and may be retried later.
var ErrBacklogFull = errors.New("too many in-flight messages, try again later")

// ErrSubmitTimeout is returned to a synchronous caller whose wait expired.
// The message keeps being processed and its conversation record still
// reaches a terminal status.
var ErrSubmitTimeout = errors.New("caller wait expired, processing continues in the background")
