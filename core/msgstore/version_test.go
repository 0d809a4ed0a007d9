package msgstore

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExpectedVersion(t *testing.T) {
	require.False(t, AnyVersion.IsSet())
	require.True(t, AnyVersion.Matches(NoStream))
	require.True(t, AnyVersion.Matches(42))
	require.Equal(t, "any", AnyVersion.String())

	e := ExpectedAt(NoStream)
	require.True(t, e.IsSet())
	require.True(t, e.Matches(NoStream))
	require.False(t, e.Matches(0))
	require.Equal(t, "no_stream", e.String())

	e = ExpectedAt(3)
	require.True(t, e.Matches(3))
	require.False(t, e.Matches(2))
	require.False(t, e.Matches(4))
	require.Equal(t, "3", e.String())
	require.NoError(t, e.Validate())

	require.ErrorIs(t, ExpectedAt(-2).Validate(), ErrInvalidExpectedVersion)

	err := ConflictError("user-1", e, 5)
	require.True(t, errors.Is(err, ErrConcurrentModification))
	require.Contains(t, err.Error(), "head is 5")
}

func TestMessage(t *testing.T) {
	data, err := normalizeData(json.RawMessage("{ \"a\" : [1, 2] }"))
	require.NoError(t, err)
	require.Equal(t, `{"a":[1,2]}`, string(data))

	data, err = normalizeData(nil)
	require.NoError(t, err)
	require.Equal(t, "null", string(data))

	_, err = normalizeData(json.RawMessage("{"))
	require.ErrorIs(t, err, ErrInvalidMessage)

	m := Message{
		ID:         "1",
		StreamName: "user:command-1",
		Data:       data,
		Metadata: Metadata{
			Checksum:   Checksum(data),
			Properties: map[string]any{"nested": map[string]any{"k": []any{"v"}}},
		},
	}
	require.Equal(t, "user:command", m.Category())
	require.NoError(t, m.VerifyChecksum())

	c := m.Clone()
	c.Data[0] = 'x'
	c.Metadata.Properties["nested"].(map[string]any)["k"].([]any)[0] = "changed"
	require.Equal(t, "null", string(m.Data))
	require.Equal(t, "v", m.Metadata.Properties["nested"].(map[string]any)["k"].([]any)[0])
	require.True(t, m.Equal(c))
	require.ErrorIs(t, c.VerifyChecksum(), ErrCorruptRead)
}

func TestChecksum(t *testing.T) {
	require.Equal(t, Checksum([]byte(`{"a":1}`)), Checksum([]byte(`{"a":1}`)))
	require.NotEqual(t, Checksum([]byte(`{"a":1}`)), Checksum([]byte(`{"a":2}`)))
}

func TestCanonicalMetadata(t *testing.T) {
	createdAt := time.Date(2024, 5, 1, 12, 30, 0, 123456789, time.UTC)
	md, err := canonicalMetadata(Metadata{
		CreatedAt:  createdAt,
		Properties: map[string]any{"n": 1, "list": []int{1, 2}, "m": map[string]string{"k": "v"}},
	})
	require.NoError(t, err)
	require.True(t, createdAt.Equal(md.CreatedAt))
	require.Equal(t, map[string]any{
		"n":    float64(1),
		"list": []any{float64(1), float64(2)},
		"m":    map[string]any{"k": "v"},
	}, md.Properties)

	_, err = canonicalMetadata(Metadata{Properties: map[string]any{"ch": make(chan int)}})
	require.ErrorIs(t, err, ErrInvalidMessage)
}
