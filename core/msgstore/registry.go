package msgstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Registry maps message type tags to constructors so callers can decode
// stored payloads. The store itself never consults it.
type Registry struct {
	mu   sync.RWMutex
	news map[string]func() any
}

func NewRegistry() *Registry {
	return &Registry{news: map[string]func() any{}}
}

func (r *Registry) Register(messageType string, ctor func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.news[messageType] = ctor
}

// Types returns the number of registered message types.
func (r *Registry) Types() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.news)
}

// Decode unmarshals the payload of m into a fresh value of its registered type.
func (r *Registry) Decode(m Message) (any, error) {
	r.mu.RLock()
	ctor, ok := r.news[m.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, m.Type)
	}
	v := ctor()
	if len(m.Data) > 0 {
		if err := json.Unmarshal(m.Data, v); err != nil {
			return nil, fmt.Errorf("decode %s at %s/%d: %w", m.Type, m.StreamName, m.Position, err)
		}
	}
	return v, nil
}

// RegisterFor registers *T under its message type.
func RegisterFor[T any](r *Registry) {
	r.Register(TypeOf(new(T)), func() any { return new(T) })
}

// TypeOf returns the message type tag of v: the result of MessageType() if
// v implements it, else the name of its Go type.
func TypeOf(v any) string {
	if t, ok := v.(interface{ MessageType() string }); ok {
		return t.MessageType()
	}
	rt := reflect.TypeOf(v)
	for rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt == nil {
		return ""
	}
	return rt.Name()
}

// Encode builds a NewMessage from a value, using TypeOf for its type tag.
func Encode(v any, md Metadata) (NewMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return NewMessage{}, err
	}
	return NewMessage{Type: TypeOf(v), Data: data, Metadata: md}, nil
}
