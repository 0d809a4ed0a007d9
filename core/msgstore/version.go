package msgstore

import (
	"fmt"
	"log/slog"
)

// NoStream is the stream head of a stream without messages. Expecting it
// asserts that the stream does not exist yet.
const NoStream int64 = -1

// ExpectedVersion is an optional append precondition: the position of the
// last message the writer believes the stream has. The zero value expects
// nothing.
type ExpectedVersion struct {
	v   int64
	set bool
}

// AnyVersion places no precondition on the append.
var AnyVersion = ExpectedVersion{}

// ExpectedAt expects the stream head to be at position v (NoStream for a new stream).
func ExpectedAt(v int64) ExpectedVersion { return ExpectedVersion{v: v, set: true} }

func (e ExpectedVersion) IsSet() bool  { return e.set }
func (e ExpectedVersion) Value() int64 { return e.v }

// Matches reports whether a stream with the given head satisfies e.
func (e ExpectedVersion) Matches(head int64) bool { return !e.set || e.v == head }

func (e ExpectedVersion) Validate() error {
	if e.set && e.v < NoStream {
		return fmt.Errorf("%w: %d", ErrInvalidExpectedVersion, e.v)
	}
	return nil
}

func (e ExpectedVersion) String() string {
	switch {
	case !e.set:
		return "any"
	case e.v == NoStream:
		return "no_stream"
	default:
		return fmt.Sprintf("%d", e.v)
	}
}

func (e ExpectedVersion) SlogAttr() slog.Attr { return slog.String("expected_version", e.String()) }

// ConflictError formats a version conflict. It wraps ErrConcurrentModification.
func ConflictError(streamName string, expect ExpectedVersion, head int64) error {
	return fmt.Errorf(
		"%w: stream %s expected version %s, head is %d",
		ErrConcurrentModification,
		streamName,
		expect,
		head,
	)
}
