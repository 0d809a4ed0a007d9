package stream

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCategory(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{"", ""},
		{"user", "user"},
		{"user-6b1e0b4c-3f39-4c0e-9a3e-0d5f6f1a2b3c", "user"},
		{"user:command", "user:command"},
		{"user:command-123", "user:command"},
		{"user:command+position-123", "user:command+position"},
		{"testStream-123", "testStream"},
		{"test_stream-123", "test_stream"},
		{"account-1+2", "account"},
		{"-123", ""},
		{"user:-1", ""},
		{":command-1", ""},
		{"bad name-1", ""},
		{"user.v2-1", ""},
		{"user:a:b-1", ""},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got := Category(tc.in)
			require.Equal(t, tc.want, got)
			require.Equal(t, got, Category(got), "category must be idempotent")
		})
	}
}

func TestParse(t *testing.T) {
	t.Run("full name", func(t *testing.T) {
		n, err := Parse("user:command-abc-def+1")
		require.NoError(t, err)
		require.Equal(t, "user:command", n.Category)
		require.Equal(t, "command", n.Qualifier)
		require.Equal(t, "abc-def+1", n.ID)
		require.Equal(t, "abc-def", n.CardinalID())
		require.Equal(t, "user:command-abc-def+1", n.String())
		require.False(t, n.IsCategory())
	})

	for _, in := range []string{"", "user", "user-", "-1", "user-a b", "user-\t", "us er-1"} {
		t.Run("invalid "+in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidStreamName))
			require.ErrorIs(t, Validate(in), ErrInvalidStreamName)
		})
	}

	t.Run("category", func(t *testing.T) {
		n, err := ParseCategory("order:events")
		require.NoError(t, err)
		require.True(t, n.IsCategory())
		require.Equal(t, "order:events", n.String())

		_, err = ParseCategory("order-1")
		require.ErrorIs(t, err, ErrInvalidStreamName)
	})
}

func TestNew(t *testing.T) {
	n, err := New("order", "42")
	require.NoError(t, err)
	require.Equal(t, "order-42", n.String())

	_, err = New("", "42")
	require.ErrorIs(t, err, ErrInvalidStreamName)
	_, err = New("order", "")
	require.ErrorIs(t, err, ErrInvalidStreamName)
	_, err = New("or-der", "42")
	require.ErrorIs(t, err, ErrInvalidStreamName)
}

func TestMaxLength(t *testing.T) {
	id := strings.Repeat("x", MaxLength-len("user-"))
	n, err := Parse("user-" + id)
	require.NoError(t, err)
	require.Len(t, n.String(), MaxLength)

	_, err = Parse("user-" + id + "x")
	require.ErrorIs(t, err, ErrInvalidStreamName)
	_, err = ParseCategory(strings.Repeat("c", MaxLength+1))
	require.ErrorIs(t, err, ErrInvalidStreamName)
}

func TestIDs(t *testing.T) {
	require.Equal(t, "123", ID("user-123"))
	require.Equal(t, "a-b", ID("user-a-b"))
	require.Equal(t, "", ID("user"))
	require.Equal(t, "", ID("bad name-1"))
	require.Equal(t, "123", CardinalID("user-123+456"))
	require.Equal(t, "command", Qualifier("user:command-1"))
	require.Equal(t, "", Qualifier("user-1"))
	require.True(t, IsCategory("user:command"))
	require.False(t, IsCategory("user-1"))
	require.False(t, IsCategory(""))
}

func TestHash64(t *testing.T) {
	h := Hash64("123")
	require.Equal(t, h, Hash64("123"))
	require.NotEqual(t, h, Hash64("124"))
	for _, s := range []string{"", "a", "user-1", "ffffffff"} {
		require.GreaterOrEqual(t, Hash64(s), int64(0))
	}
}
