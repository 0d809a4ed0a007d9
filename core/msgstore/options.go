package msgstore

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const defaultBatchSize = 1000

type (
	valueOption[T any] struct{ v T }

	storeOpts struct {
		log       *slog.Logger
		metrics   Metrics
		tracer    trace.TracerProvider
		batchSize int
		now       func() time.Time
	}

	// Option configures a Store.
	Option interface {
		applyToStore(*storeOpts)
	}

	LogOption       valueOption[*slog.Logger]
	MetricsOption   valueOption[Metrics]
	TracerOption    valueOption[trace.TracerProvider]
	BatchSizeOption valueOption[int]
	ClockOption     valueOption[func() time.Time]
)

// WithLog sets the logger of a Store or Consumer.
func WithLog(l *slog.Logger) LogOption { return LogOption{l} }

// WithMetrics sets the metrics of a Store or Consumer.
func WithMetrics(m Metrics) MetricsOption { return MetricsOption{m} }

// WithTracerProvider sets the tracer provider used for spans (default: the otel global).
func WithTracerProvider(tp trace.TracerProvider) TracerOption { return TracerOption{tp} }

// WithBatchSize sets how many messages lazy iterators and consumers fetch per read.
func WithBatchSize(n int) BatchSizeOption { return BatchSizeOption{n} }

// WithClock replaces time.Now for stamping messages.
func WithClock(now func() time.Time) ClockOption { return ClockOption{now} }

func (o LogOption) applyToStore(s *storeOpts)     { s.log = o.v }
func (o MetricsOption) applyToStore(s *storeOpts) { s.metrics = o.v }
func (o TracerOption) applyToStore(s *storeOpts)  { s.tracer = o.v }
func (o BatchSizeOption) applyToStore(s *storeOpts) {
	if o.v > 0 {
		s.batchSize = o.v
	}
}
func (o ClockOption) applyToStore(s *storeOpts) { s.now = o.v }

// === append options ===

type appendOpts struct {
	expect ExpectedVersion
}

// AppendOption configures a single append.
type AppendOption func(*appendOpts)

// ExpectVersion requires the stream head to be at position v.
func ExpectVersion(v int64) AppendOption {
	return func(o *appendOpts) { o.expect = ExpectedAt(v) }
}

// ExpectNoStream requires the stream to have no messages.
func ExpectNoStream() AppendOption { return ExpectVersion(NoStream) }

// WithExpectedVersion sets the precondition directly.
func WithExpectedVersion(e ExpectedVersion) AppendOption {
	return func(o *appendOpts) { o.expect = e }
}

// === read options ===

type readOpts struct {
	fromPosition       int64
	fromGlobalPosition int64
	limit              int
	messageTypes       []string
	group              *ConsumerGroup
}

// ReadOption configures a read.
type ReadOption func(*readOpts)

// FromPosition starts a stream read at the given stream position.
func FromPosition(p int64) ReadOption { return func(o *readOpts) { o.fromPosition = p } }

// FromGlobalPosition starts a category read at the given global position.
func FromGlobalPosition(p int64) ReadOption { return func(o *readOpts) { o.fromGlobalPosition = p } }

// Limit caps the number of returned messages.
func Limit(n int) ReadOption { return func(o *readOpts) { o.limit = n } }

// MessageTypes restricts a category read to the given types.
func MessageTypes(types ...string) ReadOption {
	return func(o *readOpts) { o.messageTypes = append(o.messageTypes, types...) }
}

// InConsumerGroup restricts a category read to the streams of one group member.
func InConsumerGroup(member, size int64) ReadOption {
	return func(o *readOpts) { o.group = &ConsumerGroup{Member: member, Size: size} }
}

func newReadOpts(opts ...ReadOption) readOpts {
	o := readOpts{fromGlobalPosition: 1}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
