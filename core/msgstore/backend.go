package msgstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/codewandler/msgstore-go/core/stream"
)

// Backend persists messages. Implementations must give the same ordering
// guarantees and error kinds:
//
//   - Append assigns position head+1 (0 for a new stream) and the next
//     global position, atomically with the write, and fails with
//     ErrConcurrentModification without writing when expect does not match
//     the head.
//   - Global positions start at 1 and are gap-free and strictly increasing
//     in commit order.
//   - Reads never return a message whose write has not completed.
//   - Unknown streams and categories read as empty, not as errors.
//
// The Store validates names, stamps ids and checksums and verifies
// checksums on read; backends do not repeat that work.
type Backend interface {
	Append(ctx context.Context, rec Record, expect ExpectedVersion) (AppendResult, error)
	ReadStream(ctx context.Context, streamName string, q StreamQuery) ([]Message, error)
	ReadCategory(ctx context.Context, category string, q CategoryQuery) ([]Message, error)
	// ReadLast returns nil if the stream has no messages.
	ReadLast(ctx context.Context, streamName string) (*Message, error)
	// Reset purges all messages and resets all positions.
	Reset(ctx context.Context) error
	Close() error
}

// AppendResult reports where a message was stored.
type AppendResult struct {
	ID             string
	Position       int64
	GlobalPosition int64
}

// StreamQuery selects messages of one stream.
type StreamQuery struct {
	// FromPosition is the first stream position to return.
	FromPosition int64
	// Limit caps the number of messages, 0 means no limit.
	Limit int
}

// ConsumerGroup partitions a category between Size consumers by the hash
// of the cardinal stream id. Member is 0-based.
type ConsumerGroup struct {
	Member int64
	Size   int64
}

// Validate returns an error wrapping ErrInvalidConsumerGroup unless
// 0 <= Member < Size.
func (g ConsumerGroup) Validate() error {
	if g.Size <= 0 || g.Member < 0 || g.Member >= g.Size {
		return fmt.Errorf("%w: member %d of %d", ErrInvalidConsumerGroup, g.Member, g.Size)
	}
	return nil
}

// Includes reports whether the stream belongs to this member. An invalid
// group includes nothing.
func (g ConsumerGroup) Includes(streamName string) bool {
	if g.Validate() != nil {
		return false
	}
	return stream.Hash64(stream.CardinalID(streamName))%g.Size == g.Member
}

// CategoryQuery selects messages of all streams in a category.
type CategoryQuery struct {
	// FromGlobalPosition is the first global position to consider.
	FromGlobalPosition int64
	// Limit caps the number of returned messages (after filtering), 0 means no limit.
	Limit int
	// MessageTypes restricts the result to these types, if not empty.
	MessageTypes []string
	// ConsumerGroup restricts the result to one member's streams, if set.
	ConsumerGroup *ConsumerGroup
}

// Matches reports whether m passes the type and consumer group filters.
// Position bounds and the category itself are not checked.
func (q CategoryQuery) Matches(m Message) bool {
	if len(q.MessageTypes) > 0 && !slices.Contains(q.MessageTypes, m.Type) {
		return false
	}
	if q.ConsumerGroup != nil && !q.ConsumerGroup.Includes(m.StreamName) {
		return false
	}
	return true
}

// Full reports whether n messages reach the limit.
func (q CategoryQuery) Full(n int) bool { return q.Limit > 0 && n >= q.Limit }

// Full reports whether n messages reach the limit.
func (q StreamQuery) Full(n int) bool { return q.Limit > 0 && n >= q.Limit }
