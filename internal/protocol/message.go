// Package protocol defines the named-message envelope and payload schemas
// exchanged with the IDE server. Every message carries an opcode; requests
// additionally carry an ID that the matching response echoes back, while
// unsolicited pushes carry no ID at all.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Opcodes identifying a message's semantic type.
const (
	OpTree   = "tree"
	OpOpen   = "open"
	OpDump   = "dump"
	OpSave   = "save"
	OpClose  = "close"
	OpExport = "export"
)

// Message is the wire envelope for the named-message channel.
type Message struct {
	Op      string          `json:"op"`
	ID      *int64          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsResponse returns true if the message answers an earlier request.
func (m *Message) IsResponse() bool {
	return m.ID != nil
}

// IsError returns true if the message carries an error payload.
func (m *Message) IsError() bool {
	return m.Error != nil
}

// Error is the error shape the server attaches to failed requests.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// NewRequest creates a request message with the given ID and payload.
func NewRequest(id int64, op string, payload interface{}) (*Message, error) {
	msg := &Message{Op: op, ID: &id}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", op, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// NewPush creates a fire-and-forget message: no ID, no response expected.
func NewPush(op string, payload interface{}) (*Message, error) {
	msg := &Message{Op: op}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", op, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// Parse decodes a wire message and validates the envelope.
func Parse(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Op == "" {
		return nil, fmt.Errorf("missing opcode")
	}
	return &msg, nil
}
