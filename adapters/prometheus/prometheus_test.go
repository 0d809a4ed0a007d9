package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/msgstore-go/core/msgstore"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	timer := m.AppendDuration("user")
	assert.NotNil(t, timer)
	timer.ObserveDuration()
	m.MessagesAppended("user", 5)
	m.ConcurrencyConflict("user")

	timer = m.ReadDuration(msgstore.ReadKindStream)
	assert.NotNil(t, timer)
	timer.ObserveDuration()
	m.MessagesRead(msgstore.ReadKindStream, 3)
	m.CorruptRead("user")

	timer = m.ConsumerMessageDuration("worker")
	assert.NotNil(t, timer)
	timer.ObserveDuration()
	m.ConsumerMessageProcessed("worker", true)
	m.ConsumerMessageProcessed("worker", false)
	m.ConsumerPosition("worker", 100)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["msgstore_append_duration_seconds"])
	assert.True(t, names["msgstore_messages_appended_total"])
	assert.True(t, names["msgstore_corrupt_reads_total"])
	assert.True(t, names["msgstore_consumer_position"])
}

func TestMetrics_Store(t *testing.T) {
	var (
		reg = prometheus.NewRegistry()
		m   = NewMetrics(reg).(*storeMetrics)
		s   = msgstore.New(msgstore.NewMemoryBackend(), msgstore.WithMetrics(m))
	)

	for i := 0; i < 3; i++ {
		_, err := s.Write(t.Context(), "user-1", "Registered", nil, msgstore.Metadata{})
		require.NoError(t, err)
	}
	_, err := s.Append(t.Context(), "user-1", msgstore.NewMessage{Type: "Registered"}, msgstore.ExpectNoStream())
	require.ErrorIs(t, err, msgstore.ErrConcurrentModification)

	_, err = s.ReadStream(t.Context(), "user-1")
	require.NoError(t, err)
	_, err = s.ReadCategory(t.Context(), "user", msgstore.Limit(2))
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.messagesAppended.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.concurrencyConflicts.WithLabelValues("user")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.messagesRead.WithLabelValues(msgstore.ReadKindStream)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesRead.WithLabelValues(msgstore.ReadKindCategory)))

	t.Run("consumer", func(t *testing.T) {
		c, err := msgstore.NewConsumer(s, "user", msgstore.HandlerFunc(func(context.Context, msgstore.Message) error {
			return nil
		}),
			msgstore.WithConsumerName("worker"),
			msgstore.WithMetrics(m),
			msgstore.WithPollInterval(5*time.Millisecond),
		)
		require.NoError(t, err)
		require.NoError(t, c.Start(t.Context()))
		defer c.Stop()

		require.Eventually(t, func() bool {
			return testutil.ToFloat64(m.consumerPosition.WithLabelValues("worker")) == 3
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, 3.0, testutil.ToFloat64(m.consumerMessages.WithLabelValues("worker", "true")))
	})
}
