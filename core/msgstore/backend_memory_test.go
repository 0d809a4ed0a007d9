package msgstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type corruptCounter struct {
	nopMetrics
	corrupt []string
}

func (c *corruptCounter) CorruptRead(category string) { c.corrupt = append(c.corrupt, category) }

func TestMemoryBackend_CorruptRead(t *testing.T) {
	var (
		b = NewMemoryBackend()
		m = &corruptCounter{}
		s = New(b, WithMetrics(m))
	)

	_, err := s.Write(t.Context(), "user-1", "Registered", json.RawMessage(`{"name":"ada"}`), Metadata{})
	require.NoError(t, err)

	b.mu.Lock()
	b.arena[0].Data = json.RawMessage(`{"name":"eve"}`)
	b.mu.Unlock()

	_, err = s.ReadStream(t.Context(), "user-1")
	require.ErrorIs(t, err, ErrCorruptRead)
	_, err = s.ReadCategory(t.Context(), "user")
	require.ErrorIs(t, err, ErrCorruptRead)
	_, err = s.ReadLast(t.Context(), "user-1")
	require.ErrorIs(t, err, ErrCorruptRead)

	require.Equal(t, []string{"user", "user", "user"}, m.corrupt)
}

func TestMemoryBackend_ReadCategoryFromMiddle(t *testing.T) {
	b := NewMemoryBackend()
	for i, sn := range []string{"a-1", "b-1", "a-2", "b-2", "a-1"} {
		rec := Record{ID: sn + string(rune('0'+i)), StreamName: sn, Category: sn[:1], Type: "T", Data: json.RawMessage("null")}
		_, err := b.Append(t.Context(), rec, AnyVersion)
		require.NoError(t, err)
	}

	msgs, err := b.ReadCategory(t.Context(), "a", CategoryQuery{FromGlobalPosition: 2})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, int64(3), msgs[0].GlobalPosition)
	require.Equal(t, int64(5), msgs[1].GlobalPosition)
	require.Equal(t, int64(1), msgs[1].Position)
}

func TestMemoryBackend_InvalidConsumerGroup(t *testing.T) {
	b := NewMemoryBackend()
	s := New(b)
	_, err := s.Write(t.Context(), "user-1", "Registered", nil, Metadata{})
	require.NoError(t, err)

	for _, g := range []ConsumerGroup{{Member: 0, Size: 0}, {Member: 2, Size: 2}, {Member: -1, Size: 1}} {
		require.ErrorIs(t, g.Validate(), ErrInvalidConsumerGroup)
		require.False(t, g.Includes("user-1"))

		msgs, err := b.ReadCategory(t.Context(), "user", CategoryQuery{ConsumerGroup: &g})
		require.NoError(t, err)
		require.Empty(t, msgs)
	}

	require.NoError(t, ConsumerGroup{Member: 0, Size: 1}.Validate())
	require.True(t, ConsumerGroup{Member: 0, Size: 1}.Includes("user-1"))
}
