// Package protocol implements the JSON-RPC envelope exchanged with the
// service over the websocket transport: outbound "method" frames, inbound
// "reply"/"method" frames, and the monotonic id assignment described in
// spec §4.4 and §3 (Message).
package protocol

import (
	"encoding/json"
	"fmt"
)

// FrameType is the wire-level "type" discriminator.
type FrameType string

const (
	FrameMethod FrameType = "method"
	FrameReply  FrameType = "reply"
)

// Message is the immutable outbound envelope. Once built it is never
// mutated except for Retries/Timestamp, which the pipeline owns.
type Message struct {
	ID        uint32          `json:"id"`
	Type      FrameType       `json:"type"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Discard   bool            `json:"discard"`
	Timestamp int64           `json:"-"` // ms, set each time the message is sent
	Retries   uint32          `json:"-"`
}

// NewMessage builds an outbound method call, marshaling params to JSON.
func NewMessage(id uint32, method string, params any, discard bool) (*Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshaling params for %s: %w", method, err)
	}
	return &Message{
		ID:      id,
		Type:    FrameMethod,
		Method:  method,
		Params:  raw,
		Discard: discard,
	}, nil
}

// Encode serializes the message for transmission.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// ReplyError is the `{code, message, path}` shape carried on error replies.
type ReplyError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// InboundFrame is the minimally-typed shape used to classify a raw frame
// before dispatching it to a reply or method handler. The payload `ID` is
// the one used for awaiting-reply correlation — see spec §9, "reply-phase
// id collisions": the pipeline must never mint its own id for a decoded
// frame and use that instead.
type InboundFrame struct {
	ID     uint32          `json:"id"`
	Type   FrameType       `json:"type"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ReplyError     `json:"error,omitempty"`
}

// Decode parses a raw inbound text frame.
func Decode(raw []byte) (*InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return &f, nil
}
