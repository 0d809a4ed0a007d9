// Package keylock provides mutual exclusion per key while letting work for
// different keys run concurrently.
//
// The message store uses it to serialize appends to one stream without
// blocking appends to other streams.
package keylock

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrTimeout = errors.New("lock wait timeout")

// Option configures a Locker.
type Option func(*config)

type config struct {
	timeout time.Duration
}

// WithTimeout bounds how long Lock waits for a key (default: no bound
// beyond the context).
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Locker hands out exclusive locks per key. Entries are reference counted
// and removed once no holder or waiter is left, so the map only grows with
// the number of keys in use.
type Locker[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
	timeout time.Duration
}

type entry struct {
	token chan struct{}
	refs  int
}

// New creates a new Locker.
func New[K comparable](opts ...Option) *Locker[K] {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Locker[K]{
		entries: make(map[K]*entry),
		timeout: cfg.timeout,
	}
}

// Lock blocks until the lock for key is held, ctx is done or the configured
// timeout expires. The returned func releases the lock and must be called
// exactly once.
func (l *Locker[K]) Lock(ctx context.Context, key K) (unlock func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	e := l.acquireLocked(key)
	l.mu.Unlock()

	var timeout <-chan time.Time
	if l.timeout > 0 {
		t := time.NewTimer(l.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case e.token <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.token
				l.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	case <-timeout:
		l.release(key, e)
		return nil, ErrTimeout
	}
}

// Do runs fn while holding the lock for key.
func (l *Locker[K]) Do(ctx context.Context, key K, fn func() error) error {
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// Len returns the number of keys currently locked or waited on.
func (l *Locker[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Locker[K]) acquireLocked(key K) *entry {
	e, ok := l.entries[key]
	if !ok {
		e = &entry{token: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Locker[K]) release(key K, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}
