// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// WireVersion is the protocol version spoken between bridges. A request
// carrying another version must be rejected, not answered.
const WireVersion = "bridge/1"

// Media types for the two supported wire encodings.
const (
	MediaJSON = "application/json"
	MediaCBOR = "application/cbor"
)

// WireRequest is an agent-to-agent request as it travels over the network.
// Hops counts the relays this exchange already passed through; a receiving
// bridge rejects requests exceeding its hop limit.
type WireRequest struct {
	Version        string `json:"version" cbor:"version"`
	SenderID       string `json:"sender_id" cbor:"sender_id"`
	RecipientID    string `json:"recipient_id" cbor:"recipient_id"`
	ConversationID string `json:"conversation_id" cbor:"conversation_id"`
	Payload        string `json:"payload" cbor:"payload"`
	Hops           int    `json:"hops" cbor:"hops"`
}

// Wire response status values.
const (
	WireStatusOk    = "ok"
	WireStatusError = "error"
)

// WireResponse answers a WireRequest. On WireStatusOk the Payload may carry
// the peer's reply text; on WireStatusError the ErrorDetail explains the
// refusal.
type WireResponse struct {
	Status      string `json:"status" cbor:"status"`
	Payload     string `json:"payload,omitempty" cbor:"payload,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty" cbor:"error_detail,omitempty"`
}

// EncodeWireRequest serializes a WireRequest for the given media type.
func EncodeWireRequest(req WireRequest, media string) ([]byte, error) {
	return encodeWire(req, media)
}

// DecodeWireRequest parses a WireRequest from the given media type.
func DecodeWireRequest(data []byte, media string) (req WireRequest, err error) {
	err = decodeWire(data, media, &req)
	return
}

// EncodeWireResponse serializes a WireResponse for the given media type.
func EncodeWireResponse(resp WireResponse, media string) ([]byte, error) {
	return encodeWire(resp, media)
}

// DecodeWireResponse parses a WireResponse from the given media type.
func DecodeWireResponse(data []byte, media string) (resp WireResponse, err error) {
	err = decodeWire(data, media, &resp)
	return
}

func encodeWire(v interface{}, media string) ([]byte, error) {
	switch media {
	case MediaJSON:
		return json.Marshal(v)
	case MediaCBOR:
		return cbor.Marshal(v)
	default:
		return nil, fmt.Errorf("unsupported wire media type %q", media)
	}
}

func decodeWire(data []byte, media string, v interface{}) error {
	switch media {
	case MediaJSON:
		return json.Unmarshal(data, v)
	case MediaCBOR:
		return cbor.Unmarshal(data, v)
	default:
		return fmt.Errorf("unsupported wire media type %q", media)
	}
}
