package msgstore_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/codewandler/msgstore-go/core/msgstore"
	"github.com/codewandler/msgstore-go/core/msgstore/msgstoretest"
)

func TestMemoryBackend(t *testing.T) {
	msgstoretest.Run(t, func(t *testing.T) msgstore.Backend {
		return msgstore.NewMemoryBackend()
	})
}

func TestStore_Closed(t *testing.T) {
	s := msgstore.New(msgstore.NewMemoryBackend())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Write(t.Context(), "user-1", "Registered", nil, msgstore.Metadata{})
	require.ErrorIs(t, err, msgstore.ErrStoreClosed)
	_, err = s.ReadStream(t.Context(), "user-1")
	require.ErrorIs(t, err, msgstore.ErrStoreClosed)
	_, err = s.ReadCategory(t.Context(), "user")
	require.ErrorIs(t, err, msgstore.ErrStoreClosed)
	_, err = s.ReadLast(t.Context(), "user-1")
	require.ErrorIs(t, err, msgstore.ErrStoreClosed)
	require.ErrorIs(t, s.Reset(t.Context()), msgstore.ErrStoreClosed)
}

func TestStore_Clock(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 678_901_234, time.FixedZone("x", 3600))
	s := msgstore.New(msgstore.NewMemoryBackend(), msgstore.WithClock(func() time.Time { return now }))

	_, err := s.Write(t.Context(), "user-1", "Registered", json.RawMessage(`{}`), msgstore.Metadata{})
	require.NoError(t, err)

	m, err := s.ReadLast(t.Context(), "user-1")
	require.NoError(t, err)
	require.Equal(t, time.UTC, m.Time.Location())
	require.True(t, m.Time.Equal(now.Truncate(time.Microsecond)))
	require.True(t, m.Metadata.CreatedAt.Equal(m.Time))
}

func TestStore_Tracing(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	s := msgstore.New(msgstore.NewMemoryBackend(), msgstore.WithTracerProvider(tp))

	_, err := s.Write(t.Context(), "user-1", "Registered", nil, msgstore.Metadata{})
	require.NoError(t, err)
	_, err = s.Append(t.Context(), "user-1", msgstore.NewMessage{Type: "Registered"}, msgstore.ExpectNoStream())
	require.ErrorIs(t, err, msgstore.ErrConcurrentModification)
	_, err = s.ReadCategory(t.Context(), "user")
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 3)
	require.Equal(t, "msgstore.append", spans[0].Name())
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Equal(t, "msgstore.append", spans[1].Name())
	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Equal(t, "msgstore.read_category", spans[2].Name())
}

func TestStore_Registry(t *testing.T) {
	s := msgstore.New(msgstore.NewMemoryBackend())
	r := msgstore.NewRegistry()
	msgstore.RegisterFor[registered](r)
	msgstore.RegisterFor[renamed](r)
	require.Equal(t, 2, r.Types())

	for _, v := range []any{registered{Name: "ada"}, &renamed{To: "grace"}} {
		nm, err := msgstore.Encode(v, msgstore.Metadata{CorrelationID: "c1"})
		require.NoError(t, err)
		_, err = s.Append(t.Context(), "user-1", nm)
		require.NoError(t, err)
	}

	msgs, err := s.ReadStream(t.Context(), "user-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "registered", msgs[0].Type)
	require.Equal(t, "user.renamed", msgs[1].Type)

	v, err := r.Decode(msgs[0])
	require.NoError(t, err)
	require.Equal(t, &registered{Name: "ada"}, v)

	v, err = r.Decode(msgs[1])
	require.NoError(t, err)
	require.Equal(t, &renamed{To: "grace"}, v)

	_, err = r.Decode(msgstore.Message{Type: "Unknown"})
	require.ErrorIs(t, err, msgstore.ErrUnknownMessageType)
}

type registered struct {
	Name string `json:"name"`
}

type renamed struct {
	To string `json:"to"`
}

func (renamed) MessageType() string { return "user.renamed" }
