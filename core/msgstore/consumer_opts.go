package msgstore

import (
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type (
	consumerOpts struct {
		name                   string
		log                    *slog.Logger
		metrics                Metrics
		positions              PositionStore
		batchSize              int
		pollInterval           time.Duration
		positionUpdateInterval int
		messageTypes           []string
		group                  *ConsumerGroup
	}

	// ConsumerOption configures a Consumer.
	ConsumerOption interface {
		applyToConsumerOpts(*consumerOpts)
	}

	ConsumerNameOption   valueOption[string]
	PositionStoreOption  valueOption[PositionStore]
	PollIntervalOption   valueOption[time.Duration]
	PositionUpdateOption valueOption[int]
	ConsumerTypesOption  valueOption[[]string]
	ConsumerGroupOption  valueOption[ConsumerGroup]
	MultiConsumerOption  valueOption[[]ConsumerOption]
)

func WithConsumerName(name string) ConsumerNameOption { return ConsumerNameOption{name} }
func WithPositionStore(ps PositionStore) PositionStoreOption {
	return PositionStoreOption{ps}
}
func WithPollInterval(d time.Duration) PollIntervalOption { return PollIntervalOption{d} }

// WithPositionUpdateInterval stores the position every n processed messages (default: 100).
func WithPositionUpdateInterval(n int) PositionUpdateOption { return PositionUpdateOption{n} }
func WithConsumerMessageTypes(types ...string) ConsumerTypesOption {
	return ConsumerTypesOption{types}
}
func WithConsumerGroup(member, size int64) ConsumerGroupOption {
	return ConsumerGroupOption{ConsumerGroup{Member: member, Size: size}}
}
func WithConsumerOpts(opts ...ConsumerOption) MultiConsumerOption { return MultiConsumerOption{opts} }

func (o ConsumerNameOption) applyToConsumerOpts(c *consumerOpts)  { c.name = o.v }
func (o PositionStoreOption) applyToConsumerOpts(c *consumerOpts) { c.positions = o.v }
func (o PollIntervalOption) applyToConsumerOpts(c *consumerOpts) {
	if o.v > 0 {
		c.pollInterval = o.v
	}
}
func (o PositionUpdateOption) applyToConsumerOpts(c *consumerOpts) {
	if o.v > 0 {
		c.positionUpdateInterval = o.v
	}
}
func (o ConsumerTypesOption) applyToConsumerOpts(c *consumerOpts) {
	c.messageTypes = append(c.messageTypes, o.v...)
}
func (o ConsumerGroupOption) applyToConsumerOpts(c *consumerOpts) {
	g := o.v
	c.group = &g
}
func (o LogOption) applyToConsumerOpts(c *consumerOpts)     { c.log = o.v }
func (o MetricsOption) applyToConsumerOpts(c *consumerOpts) { c.metrics = o.v }
func (o BatchSizeOption) applyToConsumerOpts(c *consumerOpts) {
	if o.v > 0 {
		c.batchSize = o.v
	}
}
func (o MultiConsumerOption) applyToConsumerOpts(c *consumerOpts) {
	for _, opt := range o.v {
		opt.applyToConsumerOpts(c)
	}
}

func newConsumerOpts(opts ...ConsumerOption) consumerOpts {
	options := consumerOpts{
		name:                   fmt.Sprintf("consumer-%s", gonanoid.Must(6)),
		log:                    slog.Default(),
		metrics:                NopMetrics(),
		batchSize:              defaultBatchSize,
		pollInterval:           100 * time.Millisecond,
		positionUpdateInterval: 100,
	}
	for _, opt := range opts {
		opt.applyToConsumerOpts(&options)
	}
	if options.positions == nil {
		options.positions = NewInMemoryPositionStore()
	}
	return options
}
