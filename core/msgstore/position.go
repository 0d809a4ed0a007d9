package msgstore

import (
	"context"
	"errors"

	"github.com/codewandler/msgstore-go/ports/kv"
)

var ErrPositionNotFound = errors.New("position not found")

// PositionStore persists the last global position a consumer processed.
type PositionStore interface {
	// GetPosition returns ErrPositionNotFound if the consumer never stored one.
	GetPosition(ctx context.Context, consumer string) (int64, error)
	PutPosition(ctx context.Context, consumer string, globalPosition int64) error
}

// KVPositionStore keeps consumer positions in a kv.Store under "<consumer>:position".
type KVPositionStore struct {
	kv kv.Store
}

func NewKVPositionStore(store kv.Store) *KVPositionStore {
	return &KVPositionStore{kv: store}
}

// NewInMemoryPositionStore keeps positions in process memory.
func NewInMemoryPositionStore() *KVPositionStore {
	return NewKVPositionStore(kv.NewMemStore())
}

type storedPosition struct {
	GlobalPosition int64 `json:"globalPosition"`
}

func positionKey(consumer string) string { return consumer + ":position" }

func (p *KVPositionStore) GetPosition(ctx context.Context, consumer string) (int64, error) {
	v, err := kv.Get[storedPosition](ctx, p.kv, positionKey(consumer))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return 0, ErrPositionNotFound
		}
		return 0, err
	}
	return v.GlobalPosition, nil
}

func (p *KVPositionStore) PutPosition(ctx context.Context, consumer string, globalPosition int64) error {
	return kv.Put(ctx, p.kv, positionKey(consumer), storedPosition{GlobalPosition: globalPosition})
}

var _ PositionStore = (*KVPositionStore)(nil)
