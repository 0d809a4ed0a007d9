package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_SameKeySerializes(t *testing.T) {
	l := New[string]()

	var (
		wg      sync.WaitGroup
		running atomic.Int32
		maxSeen atomic.Int32
		count   int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Do(t.Context(), "a", func() error {
				n := running.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				count++
				time.Sleep(time.Millisecond)
				running.Add(-1)
				return nil
			}))
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), maxSeen.Load())
	require.Equal(t, 50, count)
	require.Equal(t, 0, l.Len(), "entries must be released")
}

func TestLocker_DifferentKeysRunConcurrently(t *testing.T) {
	l := New[string]()

	unlockA, err := l.Lock(t.Context(), "a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		defer close(done)
		unlockB, err := l.Lock(t.Context(), "b")
		if assert.NoError(t, err) {
			unlockB()
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked by a")
	}
}

func TestLocker_Timeout(t *testing.T) {
	l := New[string](WithTimeout(20 * time.Millisecond))

	unlock, err := l.Lock(t.Context(), "a")
	require.NoError(t, err)

	_, err = l.Lock(t.Context(), "a")
	require.ErrorIs(t, err, ErrTimeout)

	unlock()
	unlock() // second call is a no-op
	require.Equal(t, 0, l.Len())

	unlock, err = l.Lock(t.Context(), "a")
	require.NoError(t, err)
	unlock()
}

func TestLocker_ContextCancel(t *testing.T) {
	l := New[int]()

	unlock, err := l.Lock(t.Context(), 1)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
