package msgstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// MemoryBackend is the in-memory reference backend. All messages live in
// one arena ordered by global position; streams and categories index into
// it. A single lock serializes writers.
type MemoryBackend struct {
	mu         sync.RWMutex
	log        *slog.Logger
	arena      []Message
	streams    map[string][]int
	categories map[string][]int
	ids        map[string]struct{}
}

func NewMemoryBackend() *MemoryBackend {
	b := &MemoryBackend{
		log: slog.Default().With(slog.String("backend", "memory")),
	}
	b.reset()
	return b
}

func (b *MemoryBackend) reset() {
	b.arena = nil
	b.streams = map[string][]int{}
	b.categories = map[string][]int{}
	b.ids = map[string]struct{}{}
}

func (b *MemoryBackend) Append(_ context.Context, rec Record, expect ExpectedVersion) (AppendResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		idx  = b.streams[rec.StreamName]
		head = int64(len(idx)) - 1
	)
	if !expect.Matches(head) {
		return AppendResult{}, ConflictError(rec.StreamName, expect, head)
	}
	if _, ok := b.ids[rec.ID]; ok {
		return AppendResult{}, fmt.Errorf("%w: %s", ErrDuplicateMessageID, rec.ID)
	}

	var (
		pos = head + 1
		gp  = int64(len(b.arena)) + 1
		i   = len(b.arena)
	)
	b.arena = append(b.arena, rec.Message(pos, gp).Clone())
	b.streams[rec.StreamName] = append(idx, i)
	b.categories[rec.Category] = append(b.categories[rec.Category], i)
	b.ids[rec.ID] = struct{}{}

	b.log.Debug(
		"append",
		slog.String("stream", rec.StreamName),
		slog.Int64("position", pos),
		slog.Int64("global_position", gp),
	)

	return AppendResult{ID: rec.ID, Position: pos, GlobalPosition: gp}, nil
}

func (b *MemoryBackend) ReadStream(_ context.Context, streamName string, q StreamQuery) ([]Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx := b.streams[streamName]
	out := make([]Message, 0)
	for p := max(q.FromPosition, 0); p < int64(len(idx)) && !q.Full(len(out)); p++ {
		out = append(out, b.arena[idx[p]].Clone())
	}
	return out, nil
}

func (b *MemoryBackend) ReadCategory(_ context.Context, category string, q CategoryQuery) ([]Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx := b.categories[category]
	// arena index i holds global position i+1
	start := sort.Search(len(idx), func(i int) bool {
		return int64(idx[i])+1 >= q.FromGlobalPosition
	})

	out := make([]Message, 0)
	for _, i := range idx[start:] {
		if q.Full(len(out)) {
			break
		}
		if m := b.arena[i]; q.Matches(m) {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (b *MemoryBackend) ReadLast(_ context.Context, streamName string) (*Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx := b.streams[streamName]
	if len(idx) == 0 {
		return nil, nil
	}
	m := b.arena[idx[len(idx)-1]].Clone()
	return &m, nil
}

func (b *MemoryBackend) Reset(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
	b.log.Debug("reset")
	return nil
}

func (b *MemoryBackend) Close() error { return nil }

var _ Backend = (*MemoryBackend)(nil)
