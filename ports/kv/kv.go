// Package kv is the key-value port used to persist small pieces of state
// next to the message store, such as consumer positions.
package kv

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
)

type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	// Get returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Put stores v as JSON.
func Put[T any](ctx context.Context, store Store, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, data)
}

// Get loads a JSON value stored with Put.
func Get[T any](ctx context.Context, store Store, key string) (out T, err error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return
	}
	err = json.Unmarshal(data, &out)
	return
}
