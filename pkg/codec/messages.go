// Package codec defines the JSON-over-WebSocket-text-frame wire protocol
// between clients and the document engine: one tagged envelope per frame,
// no batching.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/foundrysync/mimic/pkg/model"
)

// Client-to-server message type discriminators.
const (
	TypeAuth            = "auth"
	TypePing            = "ping"
	TypeSubmit          = "submit"
	TypeRequestSnapshot = "request_snapshot"
	TypePresenceSet     = "presence_set"
	TypePresenceClear   = "presence_clear"
)

// Server-to-client message type discriminators.
const (
	TypeAuthResult      = "auth_result"
	TypePong            = "pong"
	TypeSnapshot        = "snapshot"
	TypeTransaction     = "transaction"
	TypeError           = "error"
	TypePresenceSnap    = "presence_snapshot"
	TypePresenceUpdate  = "presence_update"
	TypePresenceRemove  = "presence_remove"
)

// Envelope is the outer shape of every frame: a type discriminator plus a
// raw payload decoded according to Type.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseError is returned for a frame that cannot be decoded. It never
// closes the socket on its own; the connection handler decides.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse error: %v", e.Cause) }
func (e *ParseError) Unwrap() error { return e.Cause }

// --- client -> server payloads ---

type AuthPayload struct {
	Token string `json:"token"`
}

// SubmitPayload carries the transaction in its schema-applier-encoded wire
// form (see schema.Applier.Decode) rather than a generic model.Transaction
// so a schema plug-in fully controls the on-wire representation.
type SubmitPayload struct {
	Transaction json.RawMessage `json:"transaction"`
}

type PresenceSetPayload struct {
	Data json.RawMessage `json:"data"`
}

// --- server -> client payloads ---

type AuthResultPayload struct {
	Success    bool              `json:"success"`
	UserID     string            `json:"userId,omitempty"`
	Permission model.Permission  `json:"permission,omitempty"`
	Error      string            `json:"error,omitempty"`
}

type SnapshotPayload struct {
	State   json.RawMessage `json:"state"`
	Version uint64          `json:"version"`
}

// TransactionPayload mirrors SubmitPayload: Transaction is the schema
// applier's encoded wire form (see schema.Applier.Encode), not a generic
// model.Transaction marshal.
type TransactionPayload struct {
	Transaction json.RawMessage `json:"transaction"`
	Version     uint64          `json:"version"`
}

type ErrorPayload struct {
	TransactionID string `json:"transactionId,omitempty"`
	Reason        string `json:"reason"`
}

type PresenceEntryWire struct {
	Data   json.RawMessage `json:"data"`
	UserID string          `json:"userId,omitempty"`
}

type PresenceSnapshotPayload struct {
	SelfID    string                       `json:"selfId"`
	Presences map[string]PresenceEntryWire `json:"presences"`
}

type PresenceUpdatePayload struct {
	ID     string          `json:"id"`
	Data   json.RawMessage `json:"data"`
	UserID string          `json:"userId,omitempty"`
}

type PresenceRemovePayload struct {
	ID string `json:"id"`
}

// Decode parses a raw frame into its Envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, &ParseError{Cause: err}
	}
	if env.Type == "" {
		return Envelope{}, &ParseError{Cause: fmt.Errorf("missing message type")}
	}
	return env, nil
}

// DecodePayload unmarshals env's payload into v.
func DecodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return &ParseError{Cause: err}
	}
	return nil
}

// Encode wraps a server-side payload of the given type into a frame ready
// to write to the socket.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
