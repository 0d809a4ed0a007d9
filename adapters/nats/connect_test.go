package nats

import (
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/msgstore-go/core/msgstore"
)

func TestReuseConnection(t *testing.T) {
	connect := NewTestContainer(t)

	nc1, release1, err := connect()
	require.NoError(t, err)
	require.Equal(t, natsgo.CONNECTED, nc1.Status())

	nc2, release2, err := connect()
	require.NoError(t, err)
	require.Same(t, nc1, nc2)

	release1()
	release1() // no-op
	require.Equal(t, natsgo.CONNECTED, nc2.Status())

	release2()
	require.Equal(t, natsgo.CLOSED, nc1.Status())

	nc3, release3, err := connect()
	require.NoError(t, err)
	require.NotSame(t, nc1, nc3)
	require.Equal(t, natsgo.CONNECTED, nc3.Status())
	release3()
}

func TestConnectURL_Unreachable(t *testing.T) {
	connect := ReuseConnection(ConnectURL("nats://127.0.0.1:1", natsgo.Timeout(100*time.Millisecond)))
	_, _, err := connect()
	require.Error(t, err)

	_, err = NewStore(StoreConfig{Connect: connect})
	require.ErrorIs(t, err, msgstore.ErrBackendUnavailable)
}
