package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/msgstore-go/ports/kv"
)

type KvConfig struct {
	Connect Connector
	Bucket  string
}

// KvStore is a kv.Store on a JetStream key-value bucket. Keys are escaped
// so any string can be used, e.g. "worker:position".
type KvStore struct {
	kv      jetstream.KeyValue
	closeNc func()
}

func NewKvStore(ctx context.Context, cfg KvConfig) (*KvStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	nc, closeNc, err := doConnect()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}

	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		Storage:  jetstream.FileStorage,
		MaxBytes: 1024 * 1024,
	})
	if err != nil {
		closeNc()
		return nil, err
	}

	return &KvStore{kv: bucket, closeNc: closeNc}, nil
}

func (k *KvStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := k.kv.Put(ctx, escapeKey(key), value); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := k.kv.Get(ctx, escapeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v.Value(), nil
}

func (k *KvStore) Delete(ctx context.Context, key string) error {
	if err := k.kv.Delete(ctx, escapeKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Close() { k.closeNc() }

var _ kv.Store = (*KvStore)(nil)

// escapeKey maps key onto the characters JetStream allows in keys. Bytes
// outside [A-Za-z0-9_/-] and "=" itself become "=XX".
func escapeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-', c == '/':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "=%02X", c)
		}
	}
	return b.String()
}
