// Package msgstoretest holds the behavioral suite every msgstore.Backend
// must pass.
package msgstoretest

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/codewandler/msgstore-go/core/msgstore"
)

// BackendFactory returns a fresh, empty backend. It is called once per subtest.
type BackendFactory func(t *testing.T) msgstore.Backend

// Run runs the suite against the backends produced by newBackend.
func Run(t *testing.T, newBackend BackendFactory) {
	newStore := func(t *testing.T) *msgstore.Store {
		s := msgstore.New(newBackend(t), msgstore.WithBatchSize(7))
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	for _, tc := range []struct {
		name string
		fn   func(t *testing.T, s *msgstore.Store)
	}{
		{"example scenario", testExampleScenario},
		{"gap-free positions", testGapFreePositions},
		{"concurrent unconditioned appends", testConcurrentAppends},
		{"optimistic concurrency", testOptimisticConcurrency},
		{"concurrent conflicting appends", testConcurrentConflicts},
		{"global order across streams", testGlobalOrder},
		{"category fan-in", testCategoryFanIn},
		{"category filters", testCategoryFilters},
		{"consumer groups", testConsumerGroups},
		{"read stream window", testReadStreamWindow},
		{"read last", testReadLast},
		{"payload and metadata", testPayloadAndMetadata},
		{"invalid input", testInvalidInput},
		{"duplicate message id", testDuplicateID},
		{"iterators", testIterators},
		{"large reads", testLargeReads},
		{"reset", testReset},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

// === helpers ===

func uniqueID() string { return gonanoid.MustGenerate("abcdefghijklmnopqrstuvwxyz0123456789", 10) }

func msg(typ string, v any) msgstore.NewMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return msgstore.NewMessage{Type: typ, Data: data}
}

func positions(msgs []msgstore.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Position)
	}
	return out
}

func globalPositions(msgs []msgstore.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.GlobalPosition)
	}
	return out
}

func streamNames(msgs []msgstore.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.StreamName)
	}
	return out
}

func requireStrictlyIncreasing(t *testing.T, values []int64) {
	t.Helper()
	for i := 1; i < len(values); i++ {
		require.Less(t, values[i-1], values[i], "values must be strictly increasing: %v", values)
	}
}

func seq(from, to int64) []int64 {
	out := make([]int64, 0)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

// === tests ===

func testExampleScenario(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()
	const sn = "testStream-123"

	for i := 0; i < 3; i++ {
		pos, err := s.Write(ctx, sn, "Event1", json.RawMessage(`{"foo":"bar"}`), msgstore.Metadata{})
		require.NoError(t, err)
		require.Equal(t, int64(i), pos)
	}

	msgs, err := s.ReadStream(ctx, sn)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, []int64{0, 1, 2}, positions(msgs))
	for _, m := range msgs {
		require.Equal(t, "Event1", m.Type)
		require.JSONEq(t, `{"foo":"bar"}`, string(m.Data))
		require.Equal(t, "testStream", m.Category())
	}

	pos, err := s.Write(ctx, sn, "Event1", json.RawMessage(`{"foo":"bar"}`), msgstore.Metadata{})
	require.NoError(t, err)
	require.Equal(t, int64(3), pos)

	_, err = s.Append(ctx, sn, msg("Event1", map[string]string{"foo": "bar"}), msgstore.ExpectVersion(1))
	require.ErrorIs(t, err, msgstore.ErrConcurrentModification)

	require.Equal(t, "testStream", s.Category(sn))
}

func testGapFreePositions(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()
	sn := "order-" + uniqueID()

	const n = 25
	for i := 0; i < n; i++ {
		res, err := s.AppendWithResult(ctx, sn, msg("Placed", map[string]int{"i": i}))
		require.NoError(t, err)
		require.Equal(t, int64(i), res.Position)
		require.NotEmpty(t, res.ID)
	}

	msgs, err := s.ReadStream(ctx, sn)
	require.NoError(t, err)
	require.Equal(t, seq(0, n-1), positions(msgs))
	requireStrictlyIncreasing(t, globalPositions(msgs))
	for i, m := range msgs {
		require.JSONEq(t, fmt.Sprintf(`{"i":%d}`, i), string(m.Data), "write order must be kept")
	}
}

func testConcurrentAppends(t *testing.T, s *msgstore.Store) {
	const (
		writers = 8
		each    = 10
	)
	var (
		sn    = "counter-" + uniqueID()
		mu    sync.Mutex
		got   []int64
		group errgroup.Group
	)
	for w := 0; w < writers; w++ {
		group.Go(func() error {
			for i := 0; i < each; i++ {
				pos, err := s.Append(t.Context(), sn, msg("Incremented", map[string]int{"writer": w}))
				if err != nil {
					return err
				}
				mu.Lock()
				got = append(got, pos)
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())

	slices.Sort(got)
	require.Equal(t, seq(0, writers*each-1), got, "each append must get its own slot")

	msgs, err := s.ReadStream(t.Context(), sn)
	require.NoError(t, err)
	require.Equal(t, seq(0, writers*each-1), positions(msgs))
	requireStrictlyIncreasing(t, globalPositions(msgs))
}

func testOptimisticConcurrency(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()
	sn := "account-" + uniqueID()

	t.Run("no stream on new stream", func(t *testing.T) {
		pos, err := s.Append(ctx, sn, msg("Opened", nil), msgstore.ExpectNoStream())
		require.NoError(t, err)
		require.Equal(t, int64(0), pos)
	})

	t.Run("no stream on existing stream", func(t *testing.T) {
		_, err := s.Append(ctx, sn, msg("Opened", nil), msgstore.ExpectNoStream())
		require.ErrorIs(t, err, msgstore.ErrConcurrentModification)
	})

	t.Run("matching version", func(t *testing.T) {
		for k := int64(0); k < 3; k++ {
			pos, err := s.Append(ctx, sn, msg("Deposited", map[string]int64{"k": k}), msgstore.ExpectVersion(k))
			require.NoError(t, err)
			require.Equal(t, k+1, pos)
		}
	})

	t.Run("stale version", func(t *testing.T) {
		head, err := s.StreamVersion(ctx, sn)
		require.NoError(t, err)
		require.Equal(t, int64(3), head)

		_, err = s.Append(ctx, sn, msg("Withdrawn", nil), msgstore.ExpectVersion(head-1))
		require.ErrorIs(t, err, msgstore.ErrConcurrentModification)

		_, err = s.Append(ctx, sn, msg("Withdrawn", nil), msgstore.ExpectVersion(head+1))
		require.ErrorIs(t, err, msgstore.ErrConcurrentModification)

		after, err := s.StreamVersion(ctx, sn)
		require.NoError(t, err)
		require.Equal(t, head, after, "failed appends must not advance the stream")

		pos, err := s.Append(ctx, sn, msg("Withdrawn", nil), msgstore.ExpectVersion(head))
		require.NoError(t, err)
		require.Equal(t, head+1, pos)
	})

	t.Run("expected version on unknown stream", func(t *testing.T) {
		_, err := s.Append(ctx, "account-"+uniqueID(), msg("Deposited", nil), msgstore.ExpectVersion(0))
		require.ErrorIs(t, err, msgstore.ErrConcurrentModification)
	})

	t.Run("invalid expected version", func(t *testing.T) {
		_, err := s.Append(ctx, sn, msg("Deposited", nil), msgstore.ExpectVersion(-2))
		require.ErrorIs(t, err, msgstore.ErrInvalidExpectedVersion)
	})
}

func testConcurrentConflicts(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()
	sn := "account-" + uniqueID()

	_, err := s.Append(ctx, sn, msg("Opened", nil))
	require.NoError(t, err)

	const writers = 10
	var (
		group     errgroup.Group
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for w := 0; w < writers; w++ {
		group.Go(func() error {
			_, err := s.Append(t.Context(), sn, msg("Deposited", map[string]int{"writer": w}), msgstore.ExpectVersion(0))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, msgstore.ErrConcurrentModification):
				conflicts++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
	require.Equal(t, 1, ok, "exactly one writer may win")
	require.Equal(t, writers-1, conflicts)

	msgs, err := s.ReadStream(ctx, sn)
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1}, positions(msgs))
}

func testGlobalOrder(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()
	var (
		cat     = "ledger" + uniqueID()
		streams = []string{cat + "-a", cat + "-b", cat + "-c"}
		written []int64
	)
	for i := 0; i < 12; i++ {
		res, err := s.AppendWithResult(ctx, streams[i%len(streams)], msg("Booked", map[string]int{"i": i}))
		require.NoError(t, err)
		written = append(written, res.GlobalPosition)
	}
	requireStrictlyIncreasing(t, written)
	require.Equal(t, seq(written[0], written[0]+11), written, "global positions must be gap-free")

	msgs, err := s.ReadCategory(ctx, cat)
	require.NoError(t, err)
	require.Equal(t, written, globalPositions(msgs))
	for i, m := range msgs {
		require.Equal(t, streams[i%len(streams)], m.StreamName)
		require.Equal(t, int64(i/len(streams)), m.Position)
	}
}

func testCategoryFanIn(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()
	var (
		id    = uniqueID()
		user  = "user" + id
		order = "order" + id
	)
	_, err := s.Write(ctx, user+"-1", "Registered", nil, msgstore.Metadata{})
	require.NoError(t, err)
	_, err = s.Write(ctx, user+"-2", "Registered", nil, msgstore.Metadata{})
	require.NoError(t, err)
	_, err = s.Write(ctx, order+"-1", "Placed", nil, msgstore.Metadata{})
	require.NoError(t, err)
	_, err = s.Write(ctx, user+"-1", "Renamed", nil, msgstore.Metadata{})
	require.NoError(t, err)
	_, err = s.Write(ctx, user+":command-1", "Register", nil, msgstore.Metadata{})
	require.NoError(t, err)

	msgs, err := s.ReadCategory(ctx, user)
	require.NoError(t, err)
	require.Equal(t, []string{user + "-1", user + "-2", user + "-1"}, streamNames(msgs))
	requireStrictlyIncreasing(t, globalPositions(msgs))

	msgs, err = s.ReadCategory(ctx, order)
	require.NoError(t, err)
	require.Equal(t, []string{order + "-1"}, streamNames(msgs))

	msgs, err = s.ReadCategory(ctx, user+":command")
	require.NoError(t, err)
	require.Equal(t, []string{user + ":command-1"}, streamNames(msgs))

	msgs, err = s.ReadCategory(ctx, "unknown"+id)
	require.NoError(t, err)
	require.NotNil(t, msgs)
	require.Empty(t, msgs)
}

func testCategoryFilters(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()
	cat := "cart" + uniqueID()

	var all []int64
	for i, typ := range []string{"Added", "Removed", "Added", "CheckedOut", "Added", "Removed"} {
		res, err := s.AppendWithResult(ctx, fmt.Sprintf("%s-%d", cat, i%2), msg(typ, nil))
		require.NoError(t, err)
		all = append(all, res.GlobalPosition)
	}

	t.Run("message types keep global positions", func(t *testing.T) {
		msgs, err := s.ReadCategory(ctx, cat, msgstore.MessageTypes("Added"))
		require.NoError(t, err)
		require.Equal(t, []int64{all[0], all[2], all[4]}, globalPositions(msgs))

		msgs, err = s.ReadCategory(ctx, cat, msgstore.MessageTypes("Removed", "CheckedOut"))
		require.NoError(t, err)
		require.Equal(t, []int64{all[1], all[3], all[5]}, globalPositions(msgs))
	})

	t.Run("from global position", func(t *testing.T) {
		msgs, err := s.ReadCategory(ctx, cat, msgstore.FromGlobalPosition(all[3]))
		require.NoError(t, err)
		require.Equal(t, all[3:], globalPositions(msgs))

		msgs, err = s.ReadCategory(ctx, cat, msgstore.FromGlobalPosition(all[5]+1))
		require.NoError(t, err)
		require.Empty(t, msgs)
	})

	t.Run("limit counts returned messages", func(t *testing.T) {
		msgs, err := s.ReadCategory(ctx, cat, msgstore.Limit(2))
		require.NoError(t, err)
		require.Equal(t, all[:2], globalPositions(msgs))

		msgs, err = s.ReadCategory(ctx, cat, msgstore.MessageTypes("Added"), msgstore.Limit(2))
		require.NoError(t, err)
		require.Equal(t, []int64{all[0], all[2]}, globalPositions(msgs))

		msgs, err = s.ReadCategory(ctx, cat,
			msgstore.FromGlobalPosition(all[1]),
			msgstore.MessageTypes("Added"),
			msgstore.Limit(1),
		)
		require.NoError(t, err)
		require.Equal(t, []int64{all[2]}, globalPositions(msgs))
	})
}

func testConsumerGroups(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()
	cat := "device" + uniqueID()

	for i := 0; i < 20; i++ {
		_, err := s.Write(ctx, fmt.Sprintf("%s-%d+part", cat, i), "Pinged", nil, msgstore.Metadata{})
		require.NoError(t, err)
	}

	all, err := s.ReadCategory(ctx, cat)
	require.NoError(t, err)
	require.Len(t, all, 20)

	const size = 3
	var merged []int64
	for member := int64(0); member < size; member++ {
		msgs, err := s.ReadCategory(ctx, cat, msgstore.InConsumerGroup(member, size))
		require.NoError(t, err)
		requireStrictlyIncreasing(t, globalPositions(msgs))
		for _, m := range msgs {
			require.True(t, (&msgstore.ConsumerGroup{Member: member, Size: size}).Includes(m.StreamName))
		}
		merged = append(merged, globalPositions(msgs)...)
	}
	slices.Sort(merged)
	require.Equal(t, globalPositions(all), merged, "members must partition the category")

	for _, g := range [][2]int64{{3, 3}, {0, 0}, {-1, 2}} {
		_, err = s.ReadCategory(ctx, cat, msgstore.InConsumerGroup(g[0], g[1]))
		require.ErrorIs(t, err, msgstore.ErrInvalidConsumerGroup, "member %d of %d", g[0], g[1])
	}
}

func testReadStreamWindow(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()
	sn := "doc-" + uniqueID()
	for i := 0; i < 10; i++ {
		_, err := s.Append(ctx, sn, msg("Edited", map[string]int{"rev": i}))
		require.NoError(t, err)
	}

	msgs, err := s.ReadStream(ctx, sn, msgstore.FromPosition(4))
	require.NoError(t, err)
	require.Equal(t, seq(4, 9), positions(msgs))

	msgs, err = s.ReadStream(ctx, sn, msgstore.FromPosition(4), msgstore.Limit(3))
	require.NoError(t, err)
	require.Equal(t, seq(4, 6), positions(msgs))

	msgs, err = s.ReadStream(ctx, sn, msgstore.FromPosition(10))
	require.NoError(t, err)
	require.Empty(t, msgs)

	msgs, err = s.ReadStream(ctx, "doc-"+uniqueID())
	require.NoError(t, err)
	require.NotNil(t, msgs)
	require.Empty(t, msgs)
}

func testReadLast(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()
	sn := "shipment-" + uniqueID()

	last, err := s.ReadLast(ctx, sn)
	require.NoError(t, err)
	require.Nil(t, last)

	v, err := s.StreamVersion(ctx, sn)
	require.NoError(t, err)
	require.Equal(t, msgstore.NoStream, v)

	for _, typ := range []string{"Packed", "Shipped", "Delivered"} {
		_, err := s.Append(ctx, sn, msg(typ, nil))
		require.NoError(t, err)
	}
	// another stream of the same category must not interfere
	_, err = s.Append(ctx, sn+"x", msg("Packed", nil))
	require.NoError(t, err)

	last, err = s.ReadLast(ctx, sn)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.Equal(t, "Delivered", last.Type)
	require.Equal(t, int64(2), last.Position)

	v, err = s.StreamVersion(ctx, sn)
	require.NoError(t, err)
	require.Equal(t, int64(2), v)
}

func testPayloadAndMetadata(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()
	sn := "invoice-" + uniqueID()
	createdAt := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	res, err := s.AppendWithResult(ctx, sn, msgstore.NewMessage{
		ID:   "0b0c4f3e-8d3c-4c55-9a0a-" + uniqueID()[:10] + "ab",
		Type: "Issued",
		Data: json.RawMessage(`{ "amount": 12.5, "lines": ["a", "b"], "note": "<&>" }`),
		Metadata: msgstore.Metadata{
			SchemaVersion:    "2",
			CausationID:      "cmd-1",
			CorrelationID:    "flow-1",
			CreatedAt:        createdAt,
			OriginStreamName: "invoice:command-1",
			Properties:       map[string]any{"tenant": "acme", "retries": 3, "tags": []string{"a", "b"}},
		},
	})
	require.NoError(t, err)

	msgs, err := s.ReadStream(ctx, sn)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	m := msgs[0]
	require.Equal(t, res.ID, m.ID)
	require.Equal(t, res.GlobalPosition, m.GlobalPosition)
	require.Equal(t, sn, m.StreamName)
	require.Equal(t, "Issued", m.Type)
	require.JSONEq(t, `{"amount":12.5,"lines":["a","b"],"note":"<&>"}`, string(m.Data))
	require.Equal(t, "2", m.Metadata.SchemaVersion)
	require.Equal(t, "cmd-1", m.Metadata.CausationID)
	require.Equal(t, "flow-1", m.Metadata.CorrelationID)
	require.Equal(t, "invoice:command-1", m.Metadata.OriginStreamName)
	require.True(t, createdAt.Equal(m.Metadata.CreatedAt), "created at: %s", m.Metadata.CreatedAt)
	require.Equal(t, "acme", m.Metadata.Properties["tenant"])
	require.Equal(t, float64(3), m.Metadata.Properties["retries"], "numbers read back as float64")
	require.Equal(t, []any{"a", "b"}, m.Metadata.Properties["tags"])
	require.Equal(t, msgstore.Checksum(m.Data), m.Metadata.Checksum)
	require.NoError(t, m.VerifyChecksum())
	require.False(t, m.Time.IsZero())

	// returned messages are copies
	m.Data[0] = 'X'
	m.Metadata.Properties["tenant"] = "evil"
	again, err := s.ReadStream(ctx, sn)
	require.NoError(t, err)
	require.JSONEq(t, `{"amount":12.5,"lines":["a","b"],"note":"<&>"}`, string(again[0].Data))
	require.Equal(t, "acme", again[0].Metadata.Properties["tenant"])

	t.Run("empty payload", func(t *testing.T) {
		_, err := s.Write(ctx, sn, "Voided", nil, msgstore.Metadata{})
		require.NoError(t, err)
		last, err := s.ReadLast(ctx, sn)
		require.NoError(t, err)
		require.Equal(t, "null", string(last.Data))
		require.False(t, last.Metadata.CreatedAt.IsZero(), "created at is stamped")
	})
}

func testInvalidInput(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()

	for _, sn := range []string{"", "user", "-1", "user-", "bad name-1", "user.x-1"} {
		_, err := s.Write(ctx, sn, "Registered", nil, msgstore.Metadata{})
		require.ErrorIs(t, err, msgstore.ErrInvalidStreamName, "stream %q", sn)

		_, err = s.ReadStream(ctx, sn)
		require.ErrorIs(t, err, msgstore.ErrInvalidStreamName, "stream %q", sn)
	}

	for _, cat := range []string{"", "user-1", "a b"} {
		_, err := s.ReadCategory(ctx, cat)
		require.ErrorIs(t, err, msgstore.ErrInvalidStreamName, "category %q", cat)
	}

	sn := "user-" + uniqueID()
	_, err := s.Write(ctx, sn, "", nil, msgstore.Metadata{})
	require.ErrorIs(t, err, msgstore.ErrInvalidMessage)

	_, err = s.Write(ctx, sn, "Registered", json.RawMessage(`{"broken"`), msgstore.Metadata{})
	require.ErrorIs(t, err, msgstore.ErrInvalidMessage)

	_, err = s.Write(ctx, sn, "Registered", nil, msgstore.Metadata{
		Properties: map[string]any{"callback": func() {}},
	})
	require.ErrorIs(t, err, msgstore.ErrInvalidMessage)

	_, err = s.Write(ctx, "user-"+strings.Repeat("x", 300), "Registered", nil, msgstore.Metadata{})
	require.ErrorIs(t, err, msgstore.ErrInvalidStreamName)

	msgs, err := s.ReadStream(ctx, sn)
	require.NoError(t, err)
	require.Empty(t, msgs, "rejected appends must not write")
}

func testDuplicateID(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()
	sn := "payment-" + uniqueID()
	id := "dup-" + uniqueID()

	_, err := s.Append(ctx, sn, msgstore.NewMessage{ID: id, Type: "Captured"})
	require.NoError(t, err)

	_, err = s.Append(ctx, sn, msgstore.NewMessage{ID: id, Type: "Captured"})
	require.ErrorIs(t, err, msgstore.ErrDuplicateMessageID)

	msgs, err := s.ReadStream(ctx, sn)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func testIterators(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()
	cat := "sensor" + uniqueID()
	sn := cat + "-1"

	for i := 0; i < 30; i++ {
		_, err := s.Append(ctx, fmt.Sprintf("%s-%d", cat, i%3), msg("Measured", map[string]int{"i": i}))
		require.NoError(t, err)
	}

	collect := func(it func(func(msgstore.Message, error) bool)) []msgstore.Message {
		var out []msgstore.Message
		for m, err := range it {
			require.NoError(t, err)
			out = append(out, m)
		}
		return out
	}

	t.Run("stream", func(t *testing.T) {
		got := collect(s.IterStream(ctx, sn))
		require.Equal(t, seq(0, 9), positions(got))

		got = collect(s.IterStream(ctx, sn, msgstore.FromPosition(3), msgstore.Limit(4)))
		require.Equal(t, seq(3, 6), positions(got))
	})

	t.Run("category", func(t *testing.T) {
		all, err := s.ReadCategory(ctx, cat)
		require.NoError(t, err)
		require.Len(t, all, 30)

		it := s.IterCategory(ctx, cat)
		require.Equal(t, globalPositions(all), globalPositions(collect(it)))
		require.Equal(t, globalPositions(all), globalPositions(collect(it)), "iteration must be restartable")

		got := collect(s.IterCategory(ctx, cat, msgstore.FromGlobalPosition(all[10].GlobalPosition), msgstore.Limit(9)))
		require.Equal(t, globalPositions(all[10:19]), globalPositions(got))
	})

	t.Run("early break", func(t *testing.T) {
		n := 0
		for _, err := range s.IterCategory(ctx, cat) {
			require.NoError(t, err)
			n++
			if n == 3 {
				break
			}
		}
		require.Equal(t, 3, n)
	})

	t.Run("error", func(t *testing.T) {
		for _, err := range s.IterStream(ctx, "not a stream") {
			assert.ErrorIs(t, err, msgstore.ErrInvalidStreamName)
		}
	})
}

func testLargeReads(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()
	var (
		cat     = "ledger" + uniqueID()
		big     = cat + "-big"
		small   = cat + "-small"
		written []int64
		odd     []int64
	)

	const total = 600
	for i := 0; i < total; i++ {
		sn, typ := big, "Even"
		if i%3 == 2 {
			sn = small
		}
		if i%2 == 1 {
			typ = "Odd"
		}
		res, err := s.AppendWithResult(ctx, sn, msg(typ, map[string]int{"i": i}))
		require.NoError(t, err)
		written = append(written, res.GlobalPosition)
		if typ == "Odd" {
			odd = append(odd, res.GlobalPosition)
		}
	}
	requireStrictlyIncreasing(t, written)

	t.Run("stream", func(t *testing.T) {
		msgs, err := s.ReadStream(ctx, big)
		require.NoError(t, err)
		require.Equal(t, seq(0, 399), positions(msgs))

		msgs, err = s.ReadStream(ctx, big, msgstore.FromPosition(100), msgstore.Limit(290))
		require.NoError(t, err)
		require.Equal(t, seq(100, 389), positions(msgs))

		msgs, err = s.ReadStream(ctx, small)
		require.NoError(t, err)
		require.Equal(t, seq(0, 199), positions(msgs))
	})

	t.Run("category", func(t *testing.T) {
		msgs, err := s.ReadCategory(ctx, cat)
		require.NoError(t, err)
		require.Equal(t, written, globalPositions(msgs))

		msgs, err = s.ReadCategory(ctx, cat, msgstore.FromGlobalPosition(written[250]), msgstore.Limit(300))
		require.NoError(t, err)
		require.Equal(t, written[250:550], globalPositions(msgs))

		msgs, err = s.ReadCategory(ctx, cat, msgstore.MessageTypes("Odd"), msgstore.Limit(270))
		require.NoError(t, err)
		require.Equal(t, odd[:270], globalPositions(msgs))
	})

	t.Run("iterators", func(t *testing.T) {
		var got []int64
		for m, err := range s.IterCategory(ctx, cat) {
			require.NoError(t, err)
			got = append(got, m.GlobalPosition)
		}
		require.Equal(t, written, got)

		var pos []int64
		for m, err := range s.IterStream(ctx, big, msgstore.FromPosition(350)) {
			require.NoError(t, err)
			pos = append(pos, m.Position)
		}
		require.Equal(t, seq(350, 399), pos)
	})
}

func testReset(t *testing.T, s *msgstore.Store) {
	ctx := t.Context()
	cat := "session" + uniqueID()

	for i := 0; i < 3; i++ {
		_, err := s.Write(ctx, cat+"-1", "Started", nil, msgstore.Metadata{})
		require.NoError(t, err)
	}

	require.NoError(t, s.Reset(ctx))

	msgs, err := s.ReadStream(ctx, cat+"-1")
	require.NoError(t, err)
	require.Empty(t, msgs)

	msgs, err = s.ReadCategory(ctx, cat)
	require.NoError(t, err)
	require.Empty(t, msgs)

	res, err := s.AppendWithResult(ctx, cat+"-2", msg("Started", nil))
	require.NoError(t, err)
	require.Equal(t, int64(0), res.Position)
	require.Equal(t, int64(1), res.GlobalPosition, "global position restarts")

	res, err = s.AppendWithResult(ctx, cat+"-1", msg("Started", nil), msgstore.ExpectNoStream())
	require.NoError(t, err)
	require.Equal(t, int64(0), res.Position)
	require.Equal(t, int64(2), res.GlobalPosition)
}
