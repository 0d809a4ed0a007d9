package msgstore

import (
	"errors"

	"github.com/codewandler/msgstore-go/core/stream"
)

var (
	// ErrInvalidStreamName is returned when a stream or category name does not
	// follow the naming scheme. Nothing is written.
	ErrInvalidStreamName = stream.ErrInvalidStreamName
	// ErrConcurrentModification is returned when the expected version did not
	// match the stream head, or a write lock could not be acquired in time.
	// Nothing is written; callers reload the stream and retry.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrBackendUnavailable is returned when the storage backend cannot be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrCorruptRead is returned when a stored payload does not match its checksum.
	ErrCorruptRead = errors.New("corrupt read")

	ErrInvalidMessage         = errors.New("invalid message")
	ErrInvalidExpectedVersion = errors.New("invalid expected version")
	ErrDuplicateMessageID     = errors.New("duplicate message id")
	ErrResetNotAllowed        = errors.New("reset not allowed")
	ErrUnknownMessageType     = errors.New("unknown message type")
	ErrStoreClosed            = errors.New("store closed")
	ErrInvalidConsumerGroup   = errors.New("invalid consumer group")
)
