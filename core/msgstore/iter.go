package msgstore

import (
	"context"
	"iter"
)

// IterStream lazily reads a stream in batches. Every range over the
// returned sequence starts again at the requested position. Iteration stops
// at the first error, which is yielded with a zero Message.
func (s *Store) IterStream(ctx context.Context, streamName string, opts ...ReadOption) iter.Seq2[Message, error] {
	o := newReadOpts(opts...)
	return func(yield func(Message, error) bool) {
		var (
			next = max(o.fromPosition, 0)
			n    = 0
		)
		for {
			batch := s.batchSize
			if o.limit > 0 {
				batch = min(batch, o.limit-n)
			}
			msgs, err := s.ReadStream(ctx, streamName, FromPosition(next), Limit(batch))
			if err != nil {
				yield(Message{}, err)
				return
			}
			for _, m := range msgs {
				if !yield(m, nil) {
					return
				}
				next = m.Position + 1
				n++
			}
			if len(msgs) < batch || (o.limit > 0 && n >= o.limit) {
				return
			}
		}
	}
}

// IterCategory lazily reads a category in batches, in global position order.
// Filters apply as in ReadCategory.
func (s *Store) IterCategory(ctx context.Context, category string, opts ...ReadOption) iter.Seq2[Message, error] {
	o := newReadOpts(opts...)
	return func(yield func(Message, error) bool) {
		var (
			next = max(o.fromGlobalPosition, 1)
			n    = 0
		)
		for {
			batch := s.batchSize
			if o.limit > 0 {
				batch = min(batch, o.limit-n)
			}
			readOpts := append(opts[:len(opts):len(opts)], FromGlobalPosition(next), Limit(batch))
			msgs, err := s.ReadCategory(ctx, category, readOpts...)
			if err != nil {
				yield(Message{}, err)
				return
			}
			for _, m := range msgs {
				if !yield(m, nil) {
					return
				}
				next = m.GlobalPosition + 1
				n++
			}
			if len(msgs) < batch || (o.limit > 0 && n >= o.limit) {
				return
			}
		}
	}
}
