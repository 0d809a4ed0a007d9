package msgstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/codewandler/msgstore-go/core/stream"
)

// Metadata carries the causal and integrity information of a message.
type Metadata struct {
	// SchemaVersion is the version of the payload schema, chosen by the caller.
	SchemaVersion string `json:"schemaVersion,omitempty"`
	// CausationID is the id of the message that caused this one.
	CausationID string `json:"causationId,omitempty"`
	// CorrelationID ties together all messages of one workflow.
	CorrelationID string `json:"correlationId,omitempty"`
	// CreatedAt is when the caller created the message. Stamped by the store if zero.
	CreatedAt time.Time `json:"createdAt"`
	// Checksum is the content hash of Data, set by the store.
	Checksum uint64 `json:"checksum"`
	// OriginStreamName is the stream this message was copied or projected from.
	OriginStreamName string `json:"originStreamName,omitempty"`
	// Properties holds additional caller-defined values.
	Properties map[string]any `json:"properties,omitempty"`
}

func (m Metadata) clone() Metadata {
	if m.Properties != nil {
		m.Properties = cloneMap(m.Properties)
	}
	return m
}

// canonicalMetadata passes md through its JSON encoding, so every backend
// stores and returns the same values: numbers in Properties become float64,
// nested values maps and slices.
func canonicalMetadata(md Metadata) (Metadata, error) {
	b, err := json.Marshal(md)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: metadata is not json encodable: %w", ErrInvalidMessage, err)
	}
	var out Metadata
	if err := json.Unmarshal(b, &out); err != nil {
		return Metadata{}, fmt.Errorf("%w: metadata: %w", ErrInvalidMessage, err)
	}
	return out, nil
}

// NewMessage is what callers hand to the store for appending.
type NewMessage struct {
	// ID is the message id. A UUID is generated when empty.
	ID string
	// Type is the message type tag, e.g. "Deposited".
	Type string
	// Data is the JSON encoded payload.
	Data json.RawMessage
	// Metadata is stored alongside the payload.
	Metadata Metadata
}

// Message is a stored message. Values returned by the store are copies.
type Message struct {
	ID string `json:"id"`
	// StreamName is the stream the message belongs to.
	StreamName string `json:"streamName"`
	// Type is the message type tag.
	Type string `json:"type"`
	// Position is the 0-based position within the stream.
	Position int64 `json:"position"`
	// GlobalPosition is the 1-based position within the whole store.
	GlobalPosition int64 `json:"globalPosition"`
	// Data is the JSON encoded payload.
	Data json.RawMessage `json:"data"`
	// Metadata as written.
	Metadata Metadata `json:"metadata"`
	// Time is when the store accepted the message (UTC).
	Time time.Time `json:"time"`
}

// Category returns the category of the message's stream.
func (m Message) Category() string { return stream.Category(m.StreamName) }

// Equal reports whether m and o are the same message.
func (m Message) Equal(o Message) bool { return m.ID == o.ID }

// VerifyChecksum returns an error wrapping ErrCorruptRead if Data does not
// match the stored checksum.
func (m Message) VerifyChecksum() error {
	if sum := Checksum(m.Data); sum != m.Metadata.Checksum {
		return fmt.Errorf(
			"%w: message %s at %s/%d has checksum %d, payload hashes to %d",
			ErrCorruptRead,
			m.ID,
			m.StreamName,
			m.Position,
			m.Metadata.Checksum,
			sum,
		)
	}
	return nil
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	m.Data = bytes.Clone(m.Data)
	m.Metadata = m.Metadata.clone()
	return m
}

func (m Message) SlogAttr() slog.Attr {
	return slog.Group(
		"message",
		slog.String("id", m.ID),
		slog.String("stream", m.StreamName),
		slog.String("type", m.Type),
		slog.Int64("position", m.Position),
		slog.Int64("global_position", m.GlobalPosition),
	)
}

// Record is a message after the store validated and stamped it, before a
// backend assigned its positions.
type Record struct {
	ID         string
	StreamName string
	Category   string
	Type       string
	Data       json.RawMessage
	Metadata   Metadata
	Time       time.Time
}

// Message returns the stored form of r at the given positions.
func (r Record) Message(position, globalPosition int64) Message {
	return Message{
		ID:             r.ID,
		StreamName:     r.StreamName,
		Type:           r.Type,
		Position:       position,
		GlobalPosition: globalPosition,
		Data:           r.Data,
		Metadata:       r.Metadata,
		Time:           r.Time,
	}
}

// normalizeData compacts JSON so the checksum does not depend on formatting
// and survives re-encoding by backends.
func normalizeData(data json.RawMessage) (json.RawMessage, error) {
	if len(data) == 0 {
		return json.RawMessage("null"), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("%w: payload is not valid json: %w", ErrInvalidMessage, err)
	}
	return buf.Bytes(), nil
}

func cloneMap(m map[string]any) map[string]any {
	out := maps.Clone(m)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := slices.Clone(t)
		for i := range out {
			out[i] = cloneValue(out[i])
		}
		return out
	case json.RawMessage:
		return bytes.Clone(t)
	default:
		return v
	}
}
