package nats

import (
	"encoding/json"
	"strings"
	"testing"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/msgstore-go/core/msgstore"
	"github.com/codewandler/msgstore-go/core/msgstore/msgstoretest"
)

func newTestStore(t *testing.T, connect Connector, allowReset bool) *Store {
	id := strings.ToLower(gonanoid.MustGenerate("abcdefghijklmnopqrstuvwxyz", 8))
	store, err := NewStore(StoreConfig{
		Connect:       connect,
		SubjectPrefix: "test." + id,
		StreamName:    "msgs_" + id,
		Storage:       jetstream.MemoryStorage,
		FetchBatch:    32,
		AllowReset:    allowReset,
	})
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore(t *testing.T) {
	connect := NewTestContainer(t)

	msgstoretest.Run(t, func(t *testing.T) msgstore.Backend {
		return newTestStore(t, connect, true)
	})

	t.Run("layout", func(t *testing.T) {
		store := newTestStore(t, connect, false)

		subject, err := store.subjectForStream("user:command-a.b*c")
		require.NoError(t, err)
		require.Equal(t, store.cfg.SubjectPrefix+".user:command.YS5iKmM", subject)
		require.Equal(t, store.cfg.SubjectPrefix+".user:command.*", store.subjectForCategory("user:command"))

		si, err := store.getStream().Info(t.Context())
		require.NoError(t, err)
		require.Equal(t, uint64(1), si.Config.FirstSeq)
		require.Equal(t, []string{store.cfg.SubjectPrefix + ".>"}, si.Config.Subjects)
	})

	t.Run("reset not allowed", func(t *testing.T) {
		s := msgstore.New(newTestStore(t, connect, false))
		_, err := s.Write(t.Context(), "user-1", "Registered", nil, msgstore.Metadata{})
		require.NoError(t, err)

		require.ErrorIs(t, s.Reset(t.Context()), msgstore.ErrResetNotAllowed)

		msgs, err := s.ReadStream(t.Context(), "user-1")
		require.NoError(t, err)
		require.Len(t, msgs, 1)
	})

	t.Run("payload stored verbatim", func(t *testing.T) {
		store := newTestStore(t, connect, false)
		s := msgstore.New(store)
		_, err := s.Write(t.Context(), "doc-1", "Written", json.RawMessage(`{"html":"<b>&amp;</b>","n":1e3}`), msgstore.Metadata{})
		require.NoError(t, err)

		subject, err := store.subjectForStream("doc-1")
		require.NoError(t, err)
		raw, err := store.getStream().GetLastMsgForSubject(t.Context(), subject)
		require.NoError(t, err)
		require.Equal(t, `{"html":"<b>&amp;</b>","n":1e3}`, string(raw.Data))
		require.Equal(t, "0", raw.Header.Get(headerPosition))
		require.Equal(t, "doc-1", raw.Header.Get(headerStream))
	})

	t.Run("reads past one default fetch", func(t *testing.T) {
		store, err := NewStore(StoreConfig{
			Connect:       connect,
			SubjectPrefix: "big." + strings.ToLower(gonanoid.MustGenerate("abcdefghijklmnopqrstuvwxyz", 8)),
			StreamName:    "big_" + strings.ToLower(gonanoid.MustGenerate("abcdefghijklmnopqrstuvwxyz", 8)),
			Storage:       jetstream.MemoryStorage,
		})
		require.NoError(t, err)
		defer store.Close()
		require.Equal(t, defaultFetchBatch, store.cfg.FetchBatch)

		s := msgstore.New(store)
		const n = defaultFetchBatch + 44
		for i := 0; i < n; i++ {
			_, err := s.Write(t.Context(), "meter-1", "Read", nil, msgstore.Metadata{})
			require.NoError(t, err)
		}

		msgs, err := s.ReadStream(t.Context(), "meter-1")
		require.NoError(t, err)
		require.Len(t, msgs, n)
		for i, m := range msgs {
			require.Equal(t, int64(i), m.Position)
			require.Equal(t, int64(i+1), m.GlobalPosition)
		}

		msgs, err = s.ReadCategory(t.Context(), "meter", msgstore.FromGlobalPosition(10), msgstore.Limit(n))
		require.NoError(t, err)
		require.Len(t, msgs, n-9)
		require.Equal(t, int64(10), msgs[0].GlobalPosition)
		require.Equal(t, int64(n), msgs[len(msgs)-1].GlobalPosition)
	})

	t.Run("two stores on one stream", func(t *testing.T) {
		a := newTestStore(t, connect, false)
		b, err := NewStore(StoreConfig{
			Connect:       connect,
			SubjectPrefix: a.cfg.SubjectPrefix,
			StreamName:    a.cfg.StreamName,
			Storage:       jetstream.MemoryStorage,
		})
		require.NoError(t, err)
		defer b.Close()

		sa, sb := msgstore.New(a), msgstore.New(b)
		_, err = sa.Append(t.Context(), "account-1", msgstore.NewMessage{Type: "Opened"})
		require.NoError(t, err)

		// b has never seen the stream, the server still rejects stale versions
		_, err = sb.Append(t.Context(), "account-1", msgstore.NewMessage{Type: "Opened"}, msgstore.ExpectNoStream())
		require.ErrorIs(t, err, msgstore.ErrConcurrentModification)

		pos, err := sb.Append(t.Context(), "account-1", msgstore.NewMessage{Type: "Deposited"}, msgstore.ExpectVersion(0))
		require.NoError(t, err)
		require.Equal(t, int64(1), pos)

		msgs, err := sa.ReadCategory(t.Context(), "account")
		require.NoError(t, err)
		require.Len(t, msgs, 2)
	})
}
