package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Envelope wraps every realtime frame. Envelopes travel as MessagePack binary
// websocket messages.
type Envelope struct {
	// ConversationID routes the frame. Empty for connection-level frames.
	ConversationID string      `msgpack:"conversationId,omitempty" json:"conversationId,omitempty"`
	Type           MessageType `msgpack:"type" json:"type"`
	Body           any         `msgpack:"body" json:"body"`

	// Meta carries optional metadata such as trace ids.
	Meta map[string]any `msgpack:"meta,omitempty" json:"meta,omitempty"`
}

// Common meta keys
const (
	MetaKeyTimestamp     = "timestamp"
	MetaKeyClientVersion = "client_version"
	MetaKeyTraceID       = "messaging.trace_id"
	MetaKeySpanID        = "messaging.span_id"
)

func NewEnvelope(conversationID string, msgType MessageType, body any) *Envelope {
	return &Envelope{
		ConversationID: conversationID,
		Type:           msgType,
		Body:           body,
	}
}

func (e *Envelope) WithMeta(key string, value any) *Envelope {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// WithTracing adds OpenTelemetry tracing fields
func (e *Envelope) WithTracing(traceID, spanID string) *Envelope {
	return e.WithMeta(MetaKeyTraceID, traceID).WithMeta(MetaKeySpanID, spanID)
}

func (e *Envelope) Encode() ([]byte, error) {
	data, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &e, nil
}

// DecodeBody converts the generic body of a decoded envelope into T.
func DecodeBody[T any](e *Envelope) (*T, error) {
	if typed, ok := e.Body.(T); ok {
		return &typed, nil
	}

	// Re-encode and decode to convert map[string]any to struct
	data, err := msgpack.Marshal(e.Body)
	if err != nil {
		return nil, fmt.Errorf("re-encode body: %w", err)
	}

	var result T
	if err := msgpack.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode body to %T: %w", result, err)
	}
	return &result, nil
}
