package nats

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/msgstore-go/core/msgstore"
	"github.com/codewandler/msgstore-go/ports/kv"
)

func TestEscapeKey(t *testing.T) {
	require.Equal(t, "worker=3Aposition", escapeKey("worker:position"))
	require.Equal(t, "a_b-c/d", escapeKey("a_b-c/d"))
	require.Equal(t, "=3D=2E=20", escapeKey("=. "))
	require.NotEqual(t, escapeKey("a:b"), escapeKey("a=3Ab"))
}

func TestKV(t *testing.T) {
	type fooBar struct {
		Fruit string
		Count int
	}
	connectNats := NewTestContainer(t)
	store, err := NewKvStore(t.Context(), KvConfig{
		Bucket:  "fruits",
		Connect: connectNats,
	})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, kv.Put(t.Context(), store, "fruit:apple", fooBar{Fruit: "apple", Count: 10}))

	v, err := kv.Get[fooBar](t.Context(), store, "fruit:apple")
	require.NoError(t, err)
	require.Equal(t, fooBar{Fruit: "apple", Count: 10}, v)

	require.NoError(t, store.Delete(t.Context(), "fruit:apple"))
	_, err = store.Get(t.Context(), "fruit:apple")
	require.ErrorIs(t, err, kv.ErrNotFound)

	t.Run("consumer positions", func(t *testing.T) {
		positions := msgstore.NewKVPositionStore(store)
		_, err := positions.GetPosition(t.Context(), "worker")
		require.ErrorIs(t, err, msgstore.ErrPositionNotFound)

		require.NoError(t, positions.PutPosition(t.Context(), "worker", 42))
		pos, err := positions.GetPosition(t.Context(), "worker")
		require.NoError(t, err)
		require.Equal(t, int64(42), pos)
	})
}
