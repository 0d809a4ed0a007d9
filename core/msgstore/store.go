package msgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codewandler/msgstore-go/core/stream"
)

const tracerName = "github.com/codewandler/msgstore-go/core/msgstore"

// Store is the entry point for appending and reading messages. It validates
// stream names and payloads, stamps ids, timestamps and checksums, verifies
// checksums on read and delegates persistence to a Backend.
type Store struct {
	id        string
	backend   Backend
	log       *slog.Logger
	metrics   Metrics
	tracer    trace.Tracer
	batchSize int
	now       func() time.Time
	closed    atomic.Bool
}

// New creates a Store on top of backend.
func New(backend Backend, opts ...Option) *Store {
	options := storeOpts{batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt.applyToStore(&options)
	}

	id := gonanoid.Must(6)
	log := options.log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("store", id))

	m := options.metrics
	if m == nil {
		m = NopMetrics()
	}

	tp := options.tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	now := options.now
	if now == nil {
		now = time.Now
	}

	return &Store{
		id:        id,
		backend:   backend,
		log:       log,
		metrics:   m,
		tracer:    tp.Tracer(tracerName),
		batchSize: options.batchSize,
		now:       now,
	}
}

// Category derives the category of a stream name. See stream.Category.
func (s *Store) Category(streamName string) string { return stream.Category(streamName) }

// Write appends a message without a concurrency precondition and returns its position.
func (s *Store) Write(
	ctx context.Context,
	streamName string,
	messageType string,
	data json.RawMessage,
	md Metadata,
) (int64, error) {
	return s.Append(ctx, streamName, NewMessage{Type: messageType, Data: data, Metadata: md})
}

// Append appends msg to the stream and returns its stream position.
func (s *Store) Append(ctx context.Context, streamName string, msg NewMessage, opts ...AppendOption) (int64, error) {
	res, err := s.AppendWithResult(ctx, streamName, msg, opts...)
	if err != nil {
		return 0, err
	}
	return res.Position, nil
}

// AppendWithResult is like Append but also reports the global position and message id.
func (s *Store) AppendWithResult(
	ctx context.Context,
	streamName string,
	msg NewMessage,
	opts ...AppendOption,
) (res AppendResult, err error) {
	if s.closed.Load() {
		return res, ErrStoreClosed
	}

	var options appendOpts
	for _, opt := range opts {
		opt(&options)
	}

	name, err := stream.Parse(streamName)
	if err != nil {
		return res, err
	}
	if err = options.expect.Validate(); err != nil {
		return res, err
	}

	rec, err := s.newRecord(name, msg)
	if err != nil {
		return res, err
	}

	ctx, span := s.tracer.Start(ctx, "msgstore.append", trace.WithAttributes(
		attribute.String("msgstore.stream", rec.StreamName),
		attribute.String("msgstore.type", rec.Type),
		attribute.String("msgstore.expected_version", options.expect.String()),
	))
	defer func() { endSpan(span, err) }()

	timer := s.metrics.AppendDuration(rec.Category)
	res, err = s.backend.Append(ctx, rec, options.expect)
	timer.ObserveDuration()
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			s.metrics.ConcurrencyConflict(rec.Category)
		}
		s.log.Debug(
			"append failed",
			slog.String("stream", rec.StreamName),
			options.expect.SlogAttr(),
			slog.Any("error", err),
		)
		return res, err
	}

	s.metrics.MessagesAppended(rec.Category, 1)
	span.SetAttributes(
		attribute.Int64("msgstore.position", res.Position),
		attribute.Int64("msgstore.global_position", res.GlobalPosition),
	)
	s.log.Debug(
		"appended",
		slog.String("stream", rec.StreamName),
		slog.String("type", rec.Type),
		slog.Int64("position", res.Position),
		slog.Int64("global_position", res.GlobalPosition),
	)
	return res, nil
}

func (s *Store) newRecord(name stream.Name, msg NewMessage) (Record, error) {
	if msg.Type == "" {
		return Record{}, fmt.Errorf("%w: message type is empty", ErrInvalidMessage)
	}
	data, err := normalizeData(msg.Data)
	if err != nil {
		return Record{}, err
	}

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	md := msg.Metadata.clone()
	if md.CreatedAt.IsZero() {
		md.CreatedAt = now
	}
	md.Checksum = Checksum(data)
	if md, err = canonicalMetadata(md); err != nil {
		return Record{}, err
	}

	return Record{
		ID:         id,
		StreamName: name.String(),
		Category:   name.Category,
		Type:       msg.Type,
		Data:       data,
		Metadata:   md,
		Time:       now,
	}, nil
}

// ReadStream returns the messages of a stream in position order. Unknown
// streams return an empty slice.
func (s *Store) ReadStream(ctx context.Context, streamName string, opts ...ReadOption) (msgs []Message, err error) {
	if err = s.checkOpen(); err != nil {
		return nil, err
	}
	if err = stream.Validate(streamName); err != nil {
		return nil, err
	}
	o := newReadOpts(opts...)

	ctx, span := s.tracer.Start(ctx, "msgstore.read_stream", trace.WithAttributes(
		attribute.String("msgstore.stream", streamName),
		attribute.Int64("msgstore.from_position", o.fromPosition),
	))
	defer func() { endSpan(span, err) }()

	timer := s.metrics.ReadDuration(ReadKindStream)
	msgs, err = s.backend.ReadStream(ctx, streamName, StreamQuery{
		FromPosition: o.fromPosition,
		Limit:        o.limit,
	})
	timer.ObserveDuration()
	if err != nil {
		return nil, err
	}
	if err = s.verify(msgs); err != nil {
		return nil, err
	}
	s.metrics.MessagesRead(ReadKindStream, len(msgs))
	return msgs, nil
}

// ReadCategory returns the messages of all streams in category in global
// position order. Type and consumer group filters never renumber positions.
func (s *Store) ReadCategory(ctx context.Context, category string, opts ...ReadOption) (msgs []Message, err error) {
	if err = s.checkOpen(); err != nil {
		return nil, err
	}
	q, err := s.categoryQuery(category, newReadOpts(opts...))
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "msgstore.read_category", trace.WithAttributes(
		attribute.String("msgstore.category", category),
		attribute.Int64("msgstore.from_global_position", q.FromGlobalPosition),
	))
	defer func() { endSpan(span, err) }()

	timer := s.metrics.ReadDuration(ReadKindCategory)
	msgs, err = s.backend.ReadCategory(ctx, category, q)
	timer.ObserveDuration()
	if err != nil {
		return nil, err
	}
	if err = s.verify(msgs); err != nil {
		return nil, err
	}
	s.metrics.MessagesRead(ReadKindCategory, len(msgs))
	return msgs, nil
}

func (s *Store) categoryQuery(category string, o readOpts) (CategoryQuery, error) {
	if _, err := stream.ParseCategory(category); err != nil {
		return CategoryQuery{}, err
	}
	if g := o.group; g != nil {
		if err := g.Validate(); err != nil {
			return CategoryQuery{}, err
		}
	}
	return CategoryQuery{
		FromGlobalPosition: max(o.fromGlobalPosition, 1),
		Limit:              o.limit,
		MessageTypes:       o.messageTypes,
		ConsumerGroup:      o.group,
	}, nil
}

// ReadLast returns the message at the head of the stream, or nil if the
// stream is empty.
func (s *Store) ReadLast(ctx context.Context, streamName string) (msg *Message, err error) {
	if err = s.checkOpen(); err != nil {
		return nil, err
	}
	if err = stream.Validate(streamName); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "msgstore.read_last", trace.WithAttributes(
		attribute.String("msgstore.stream", streamName),
	))
	defer func() { endSpan(span, err) }()

	timer := s.metrics.ReadDuration(ReadKindLast)
	msg, err = s.backend.ReadLast(ctx, streamName)
	timer.ObserveDuration()
	if err != nil || msg == nil {
		return nil, err
	}
	if err = s.verify([]Message{*msg}); err != nil {
		return nil, err
	}
	s.metrics.MessagesRead(ReadKindLast, 1)
	return msg, nil
}

// StreamVersion returns the position of the last message of the stream, or
// NoStream if it has none.
func (s *Store) StreamVersion(ctx context.Context, streamName string) (int64, error) {
	last, err := s.ReadLast(ctx, streamName)
	if err != nil {
		return 0, err
	}
	if last == nil {
		return NoStream, nil
	}
	return last.Position, nil
}

// Reset purges all messages and resets stream and global positions. Durable
// backends refuse unless explicitly configured to allow it.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.backend.Reset(ctx); err != nil {
		return err
	}
	s.log.Info("store reset")
	return nil
}

// Close closes the backend. Further calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.log.Debug("closing")
	return s.backend.Close()
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return nil
}

func (s *Store) verify(msgs []Message) error {
	for _, m := range msgs {
		if err := m.VerifyChecksum(); err != nil {
			s.metrics.CorruptRead(m.Category())
			s.log.Error("corrupt message", m.SlogAttr(), slog.Any("error", err))
			return err
		}
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
