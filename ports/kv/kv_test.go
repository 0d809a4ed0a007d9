package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStore(t *testing.T) {
	type position struct {
		GlobalPosition int64
	}

	s := NewMemStore()

	_, err := Get[position](t.Context(), s, "a")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Put(t.Context(), s, "a", position{GlobalPosition: 42}))
	v, err := Get[position](t.Context(), s, "a")
	require.NoError(t, err)
	require.Equal(t, int64(42), v.GlobalPosition)

	require.NoError(t, s.Delete(t.Context(), "a"))
	_, err = s.Get(t.Context(), "a")
	require.ErrorIs(t, err, ErrNotFound)
}
